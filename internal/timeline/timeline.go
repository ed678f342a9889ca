package timeline

import (
	"iter"

	"ledsign/internal/pixelset"
)

const seqBits = 32

type color bool

const (
	black color = false
	red   color = true
)

type node struct {
	kp     *Keypoint
	agg    pixelset.Set
	color  color
	parent *node
	child  [2]*node
}

// Timeline is an augmented ordered set of keypoints.
type Timeline struct {
	root *node
	seq  uint64
	size int
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{}
}

// Len returns the number of keypoints stored.
func (t *Timeline) Len() int {
	return t.size
}

// Pixels returns the union of the pixels of every stored keypoint.
func (t *Timeline) Pixels() pixelset.Set {
	if t.root == nil {
		return pixelset.Set{}
	}
	return t.root.agg
}

// Clear drops every keypoint. The insertion sequence is not reset, so keys
// issued afterwards never repeat one issued before.
func (t *Timeline) Clear() {
	t.root = nil
	t.size = 0
}

// Insert adds kp and assigns its key. Keypoints with no pixels are ignored.
func (t *Timeline) Insert(kp *Keypoint) {
	if kp == nil || kp.Pixels.IsEmpty() {
		return
	}
	kp.key = uint64(kp.End)<<seqBits | t.seq&(1<<seqBits-1)
	t.seq++
	t.size++

	n := &node{kp: kp, agg: kp.Pixels, color: red}
	if t.root == nil {
		n.color = black
		t.root = n
		return
	}

	y := t.root
	for {
		dir := dirOf(y.kp.key < kp.key)
		if y.child[dir] == nil {
			y.child[dir] = n
			n.parent = y
			break
		}
		y = y.child[dir]
	}

	t.fixInsert(n)
	for p := n; p != nil; p = p.parent {
		p.update()
	}
}

func dirOf(right bool) int {
	if right {
		return 1
	}
	return 0
}

func (n *node) update() {
	agg := n.kp.Pixels
	for _, c := range n.child {
		if c != nil {
			agg = pixelset.Union(agg, c.agg)
		}
	}
	n.agg = agg
}

func (n *node) isRed() bool {
	return n != nil && n.color == red
}

// rotate moves x down in direction dir, lifting its opposite child.
func (t *Timeline) rotate(x *node, dir int) {
	z := x.child[1-dir]
	x.child[1-dir] = z.child[dir]
	if z.child[dir] != nil {
		z.child[dir].parent = x
	}
	z.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = z
	case x == x.parent.child[0]:
		x.parent.child[0] = z
	default:
		x.parent.child[1] = z
	}
	z.child[dir] = x
	x.parent = z
	x.update()
	z.update()
}

func (t *Timeline) fixInsert(x *node) {
	for x.parent.isRed() {
		p := x.parent
		g := p.parent
		side := dirOf(p == g.child[1])
		uncle := g.child[1-side]
		if uncle.isRed() {
			p.color = black
			uncle.color = black
			g.color = red
			x = g
			if x.parent == nil {
				break
			}
			continue
		}
		if x == p.child[1-side] {
			x = p
			t.rotate(x, side)
			p = x.parent
		}
		p.color = black
		g.color = red
		t.rotate(g, 1-side)
	}
	t.root.color = black
}

// Successor returns the keypoint with the lowest key >= key whose pixels
// intersect filter, or nil.
func (t *Timeline) Successor(key uint64, filter pixelset.Set) *Keypoint {
	if n := ceil(t.root, key, filter); n != nil {
		return n.kp
	}
	return nil
}

// Predecessor returns the keypoint with the highest key <= key whose pixels
// intersect filter, or nil.
func (t *Timeline) Predecessor(key uint64, filter pixelset.Set) *Keypoint {
	if n := floor(t.root, key, filter); n != nil {
		return n.kp
	}
	return nil
}

func ceil(n *node, key uint64, filter pixelset.Set) *node {
	for n != nil && pixelset.Intersects(n.agg, filter) {
		if n.kp.key < key {
			n = n.child[1]
			continue
		}
		if found := ceil(n.child[0], key, filter); found != nil {
			return found
		}
		if pixelset.Intersects(n.kp.Pixels, filter) {
			return n
		}
		// Every key on the right is greater than key.
		key = 0
		n = n.child[1]
	}
	return nil
}

func floor(n *node, key uint64, filter pixelset.Set) *node {
	for n != nil && pixelset.Intersects(n.agg, filter) {
		if n.kp.key > key {
			n = n.child[0]
			continue
		}
		if found := floor(n.child[1], key, filter); found != nil {
			return found
		}
		if pixelset.Intersects(n.kp.Pixels, filter) {
			return n
		}
		key = ^uint64(0)
		n = n.child[0]
	}
	return nil
}

// All yields the keypoints intersecting filter in key order. Each call
// rescans from the start, and the tree must not be modified while iterating.
func (t *Timeline) All(filter pixelset.Set) iter.Seq[*Keypoint] {
	return func(yield func(*Keypoint) bool) {
		for kp := t.Successor(0, filter); kp != nil; kp = t.Successor(kp.key+1, filter) {
			if !yield(kp) {
				return
			}
		}
	}
}
