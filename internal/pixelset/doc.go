// Package pixelset implements a fixed-width bit set addressed by pixel index.
//
// Sign geometries routinely exceed 64 pixels, so a Set is backed by a slice of
// words sized at construction time. Sets are immutable by convention: the
// package-level combinators return fresh values and never alias their inputs.
// Sets of different widths must not be combined; the zero Set is the one
// exception and behaves as an empty set of any width.
package pixelset
