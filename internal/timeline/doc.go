// Package timeline stores the keypoints of one sign program.
//
// The Timeline is a red-black tree ordered by (End, insertion sequence). Every
// node caches the union of the pixel sets in its subtree, which lets
// pixel-filtered successor and predecessor searches skip subtrees that cannot
// match. A single tree therefore serves as the per-pixel timeline of every
// pixel at once.
//
// A Timeline has no internal locking. It is owned by one program and mutated
// by one goroutine at a time.
package timeline
