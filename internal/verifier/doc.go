// Package verifier lints a timeline for keypoints that fight over a pixel.
//
// Two keypoints conflict when they share a pixel and the ramp of the later one
// starts before the earlier one ends. A keypoint whose ramp starts before
// frame zero conflicts with the timeline origin. Conflicts are reported, never
// returned as errors; whether they block compilation is the caller's policy.
package verifier
