// Package transpose converts between per-pixel RGB samples and the bit-plane
// words stored in sign frame memory.
//
// A plane word carries one 8-bit channel sample for each of four pixels.
// Encoding moves bit b of the sample in byte k to bit 4b+k, so each nibble
// of the word holds one bit position across the four pixels. The permutation
// network below is the exact sequence the firmware expects; reordering the
// steps produces valid-looking but wrong frames.
package transpose
