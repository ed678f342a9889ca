package hardware

import (
	"fmt"
	"iter"

	"ledsign/internal/pixelset"
)

// Pixel is a present pixel yielded by a selector.
type Pixel struct {
	Index int
	Point
	Mask pixelset.Set
}

// Letter is a configured letter slot.
type Letter struct {
	Slot int
	Char byte
	Mask pixelset.Set
}

// Pixels yields the present pixels of mask in index order.
func (h *Hardware) Pixels(mask pixelset.Set) iter.Seq[Pixel] {
	return func(yield func(Pixel) bool) {
		for i := range pixelset.And(mask, h.mask).Indices() {
			if !yield(Pixel{Index: i, Point: h.points[i], Mask: pixelset.Singleton(h.Width(), i)}) {
				return
			}
		}
	}
}

// LetterPixels yields the present pixels of mask that belong to the letter
// at index.
func (h *Hardware) LetterPixels(mask pixelset.Set, index int) (iter.Seq[Pixel], error) {
	letter, err := h.LetterMask(index)
	if err != nil {
		return nil, err
	}
	return h.Pixels(pixelset.And(mask, letter)), nil
}

// Center returns the mean position of the present pixels of mask, or the
// origin when there are none.
func (h *Hardware) Center(mask pixelset.Set) Point {
	var c Point
	n := 0
	for p := range h.Pixels(mask) {
		c.X += p.X
		c.Y += p.Y
		n++
	}
	n = max(n, 1)
	return Point{X: c.X / float64(n), Y: c.Y / float64(n)}
}

// BoundingBox returns the smallest rectangle containing the present pixels of
// mask. ok is false when no pixel is selected.
func (h *Hardware) BoundingBox(mask pixelset.Set) (lo, hi Point, ok bool) {
	for p := range h.Pixels(mask) {
		if !ok {
			lo, hi, ok = p.Point, p.Point, true
			continue
		}
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	return lo, hi, ok
}

// LetterCount is the number of nonempty slots.
func (h *Hardware) LetterCount() int {
	n := 0
	for _, key := range h.config {
		if key != 0 {
			n++
		}
	}
	return n
}

func (h *Hardware) slotMask(slot int) pixelset.Set {
	m := pixelset.New(h.Width())
	for j := range h.ledDepth {
		if i := slot*h.ledDepth + j; h.present[i] {
			m.Add(i)
		}
	}
	return m
}

// LetterMask returns the pixels of the index-th configured letter, counting
// only nonempty slots.
func (h *Hardware) LetterMask(index int) (pixelset.Set, error) {
	if n := index; n >= 0 {
		for slot, key := range h.config {
			if key == 0 {
				continue
			}
			if n == 0 {
				return h.slotMask(slot), nil
			}
			n--
		}
	}
	return pixelset.Set{}, fmt.Errorf("%w: %d", ErrLetterIndex, index)
}

// Letters yields every configured letter in slot order.
func (h *Hardware) Letters() iter.Seq[Letter] {
	return func(yield func(Letter) bool) {
		for slot, key := range h.config {
			if key == 0 {
				continue
			}
			if !yield(Letter{Slot: slot, Char: key, Mask: h.slotMask(slot)}) {
				return
			}
		}
	}
}

// Circle returns the present pixels within r of (cx, cy), boundary included.
func (h *Hardware) Circle(cx, cy, r float64) pixelset.Set {
	out := pixelset.New(h.Width())
	r *= r
	for i := range h.mask.Indices() {
		dx, dy := h.points[i].X-cx, h.points[i].Y-cy
		if dx*dx+dy*dy <= r {
			out.Add(i)
		}
	}
	return out
}
