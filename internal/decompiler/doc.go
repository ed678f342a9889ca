// Package decompiler reconstructs a keypoint timeline from a rendered frame
// stream.
//
// Each slot is tracked independently. A ramp opens at the first sample that
// differs from the color the slot last settled on. Slow ramps render their
// first frames as that color, so the ramp may have started up to MaxLeadIn
// frames earlier, inside the hold. Every such lead-in is carried as a
// candidate with its own slope bounds, and the hold frames limit how steep it
// can be. While some candidate explains every sample within the tolerance,
// the ramp keeps growing. When a sample breaks all of them, the ramp is
// closed on the latest end that re-renders exactly, and the remaining
// samples are replayed against the new base color.
//
// Keypoints found on different slots with the same color, end and duration
// are merged into a single keypoint over the union of their masks. They are
// released to the sink in end order once no slot can still produce a
// keypoint that sorts before them.
package decompiler
