package pixelset

import (
	"fmt"
	"iter"
	"math/bits"
	"strings"
)

const wordBits = 64

// Set is a bit vector of Width() pixels.
type Set struct {
	width int
	words []uint64
}

// New returns an empty set of the given width.
func New(width int) Set {
	if width < 0 {
		panic(fmt.Sprintf("pixelset: negative width %d", width))
	}
	return Set{width: width, words: make([]uint64, wordCount(width))}
}

// Singleton returns a set holding only pixel index.
func Singleton(width, index int) Set {
	s := New(width)
	s.Add(index)
	return s
}

// Full returns a set with every pixel of the given width present.
func Full(width int) Set {
	s := New(width)
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	s.trim()
	return s
}

// Of returns a set holding the listed indices.
func Of(width int, indices ...int) Set {
	s := New(width)
	for _, i := range indices {
		s.Add(i)
	}
	return s
}

func wordCount(width int) int {
	return (width + wordBits - 1) / wordBits
}

// Width reports the number of addressable pixels.
func (s Set) Width() int {
	return s.width
}

// Add sets pixel index. It mutates the receiver and is intended for
// constructing a set before it is shared.
func (s *Set) Add(index int) {
	if index < 0 || index >= s.width {
		panic(fmt.Sprintf("pixelset: index %d out of range [0,%d)", index, s.width))
	}
	s.words[index/wordBits] |= 1 << uint(index%wordBits)
}

// Has reports whether pixel index is present. Out of range indices are absent.
func (s Set) Has(index int) bool {
	if index < 0 || index >= s.width {
		return false
	}
	return s.words[index/wordBits]&(1<<uint(index%wordBits)) != 0
}

// IsEmpty reports whether no pixel is present.
func (s Set) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of pixels present.
func (s Set) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	out := Set{width: s.width, words: make([]uint64, len(s.words))}
	copy(out.words, s.words)
	return out
}

// Indices yields the present pixel indices in ascending order.
func (s Set) Indices() iter.Seq[int] {
	return func(yield func(int) bool) {
		for wi, w := range s.words {
			for w != 0 {
				b := bits.TrailingZeros64(w)
				if !yield(wi*wordBits + b) {
					return
				}
				w &= w - 1
			}
		}
	}
}

// String renders the set as a hexadecimal integer, most significant pixel first.
func (s Set) String() string {
	last := len(s.words) - 1
	for last > 0 && s.words[last] == 0 {
		last--
	}
	if last < 0 {
		return "0x0"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "0x%x", s.words[last])
	for i := last - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%016x", s.words[i])
	}
	return b.String()
}

func (s *Set) trim() {
	if rem := s.width % wordBits; rem != 0 && len(s.words) > 0 {
		s.words[len(s.words)-1] &= (1 << uint(rem)) - 1
	}
}

func checkWidths(a, b Set) int {
	switch {
	case a.width == b.width:
		return a.width
	case a.width == 0 && len(a.words) == 0:
		return b.width
	case b.width == 0 && len(b.words) == 0:
		return a.width
	}
	panic(fmt.Sprintf("pixelset: width mismatch %d != %d", a.width, b.width))
}

func word(s Set, i int) uint64 {
	if i < len(s.words) {
		return s.words[i]
	}
	return 0
}

// Union returns the pixels present in a or b.
func Union(a, b Set) Set {
	out := New(checkWidths(a, b))
	for i := range out.words {
		out.words[i] = word(a, i) | word(b, i)
	}
	return out
}

// And returns the pixels present in both a and b.
func And(a, b Set) Set {
	out := New(checkWidths(a, b))
	for i := range out.words {
		out.words[i] = word(a, i) & word(b, i)
	}
	return out
}

// Intersects reports whether a and b share at least one pixel.
func Intersects(a, b Set) bool {
	checkWidths(a, b)
	n := min(len(a.words), len(b.words))
	for i := 0; i < n; i++ {
		if a.words[i]&b.words[i] != 0 {
			return true
		}
	}
	return false
}

// Equal reports whether a and b hold the same pixels.
func Equal(a, b Set) bool {
	n := max(len(a.words), len(b.words))
	checkWidths(a, b)
	for i := 0; i < n; i++ {
		if word(a, i) != word(b, i) {
			return false
		}
	}
	return true
}
