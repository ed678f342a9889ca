// Package compiler renders a keypoint timeline into the frame stream the sign
// plays back.
//
// Every frame slot is driven by the keypoints whose pixels intersect the
// slot's mask. Between keypoints a slot ramps linearly from the color it held
// when the previous keypoint finished towards the next keypoint's color,
// arriving on the last frame before End, and holds the final color once the
// timeline is exhausted. Slots that no keypoint touches stay black.
package compiler
