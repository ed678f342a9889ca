package decompiler

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"ledsign/internal/compiler"
	"ledsign/internal/logging"
	"ledsign/internal/pixelset"
	"ledsign/internal/timeline"
	"ledsign/internal/transpose"
	"ledsign/internal/wire"
)

// DefaultTolerance accepts samples within half a color step of the ideal
// ramp, which is exactly the error introduced by rounding.
const DefaultTolerance = 2

// Sink receives reconstructed keypoints in key order.
type Sink interface {
	Insert(kp *timeline.Keypoint)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(kp *timeline.Keypoint)

// Insert calls f.
func (f SinkFunc) Insert(kp *timeline.Keypoint) {
	f(kp)
}

// Options tunes a Decompiler.
type Options struct {
	// Tolerance is the accepted deviation from an ideal ramp, in quarter
	// color steps. Zero selects DefaultTolerance; negative values are
	// treated as zero.
	Tolerance int
	// Source tags every emitted keypoint.
	Source string
	Logger *slog.Logger
}

type frac struct {
	num, den int64
}

// le compares two fractions with positive denominators.
func (a frac) le(b frac) bool {
	return a.num*b.den <= b.num*a.den
}

// MaxLeadIn bounds how many unchanged frames before the first differing
// sample a ramp may reach back over. Slower ramps are split.
const MaxLeadIn = 512

// maxExact caps the lead-in lengths remembered per sample.
const maxExact = 4

// lead is one hypothesis for how many frames before the first changed
// sample the ramp began, with the slope bounds that remain for it.
type lead struct {
	frames  int64
	lo, hi  [3]frac
	bounded bool
}

type ramp struct {
	base uint32
	// holdFrom is the first frame showing base since the last keypoint.
	holdFrom uint32
	// start is the frame of the first sample differing from base.
	start   uint32
	samples []uint32
	// exact[j] lists lead-ins for which the ramp can end exactly on
	// samples[j], smallest first.
	exact [][]int64
	leads []lead
	spare []lead
}

type groupKey struct {
	color, end, duration uint32
}

type group struct {
	seq    uint64
	key    groupKey
	pixels pixelset.Set
}

// Decompiler consumes frame payload bytes through Write.
type Decompiler struct {
	sink   Sink
	lanes  int
	slots  []pixelset.Set
	tol    int64
	source string
	logger *slog.Logger

	ramps   []ramp
	carry   [transpose.GroupSize]byte
	carried int
	group   int
	frame   uint32
	pending map[groupKey]*group
	seq     uint64
	emitted int
}

// New returns a Decompiler for a stream of lanes-lane frames whose slots map
// onto pixels through slots.
func New(sink Sink, lanes int, slots []pixelset.Set, opts Options) (*Decompiler, error) {
	if lanes <= 0 || lanes > wire.MaxLanes || len(slots) != lanes*wire.SlotsPerLane {
		return nil, fmt.Errorf("%w: %d slots for %d lanes", wire.ErrGeometryMismatch, len(slots), lanes)
	}
	tol := opts.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Decompiler{
		sink:    sink,
		lanes:   lanes,
		slots:   slots,
		tol:     int64(max(tol, 0)),
		source:  opts.Source,
		logger:  logger,
		ramps:   make([]ramp, len(slots)),
		pending: make(map[groupKey]*group),
	}, nil
}

// Frames reports the number of complete frames consumed so far.
func (d *Decompiler) Frames() uint32 {
	return d.frame
}

// Write consumes payload bytes. Chunk boundaries may fall anywhere.
func (d *Decompiler) Write(p []byte) (int, error) {
	n := len(p)
	if d.carried > 0 {
		c := copy(d.carry[d.carried:], p)
		d.carried += c
		p = p[c:]
		if d.carried < transpose.GroupSize {
			return n, nil
		}
		d.consume(d.carry[:])
		d.carried = 0
	}
	for len(p) >= transpose.GroupSize {
		d.consume(p[:transpose.GroupSize])
		p = p[transpose.GroupSize:]
	}
	d.carried = copy(d.carry[:], p)
	return n, nil
}

func (d *Decompiler) consume(b []byte) {
	colors := transpose.DecodeGroup(b)
	for k, slot := range wire.GroupSlots(d.lanes, d.group) {
		if !d.slots[slot].IsEmpty() {
			d.feed(slot, d.frame, colors[k]&0xffffff)
		}
	}
	d.group++
	if d.group < 2*d.lanes {
		return
	}
	d.group = 0
	frontier := d.frame + 2
	for i := range d.ramps {
		if r := &d.ramps[i]; len(r.samples) > 0 {
			frontier = min(frontier, r.start+1)
		}
	}
	d.frame++
	d.flush(frontier)
}

// Terminate closes every open ramp and releases all remaining keypoints. It
// fails when the stream ended inside a group.
func (d *Decompiler) Terminate() error {
	for i := range d.ramps {
		for len(d.ramps[i].samples) > 0 {
			d.close(i)
		}
	}
	d.flushAll()
	d.logger.Debug("decompiled frame stream",
		logging.Int("frames", int(d.frame)),
		logging.Int("keypoints", d.emitted),
	)
	if d.carried != 0 || d.group != 0 {
		return fmt.Errorf("%w: stream ended %d bytes into frame %d",
			wire.ErrMalformedProgram, d.group*transpose.GroupSize+d.carried, d.frame)
	}
	return nil
}

func (d *Decompiler) feed(slot int, frame, v uint32) {
	r := &d.ramps[slot]
	for {
		if len(r.samples) == 0 {
			if v == r.base {
				return
			}
			r.begin(frame, d.tol)
		}
		if r.admit(v, d.tol) {
			return
		}
		d.close(slot)
	}
}

// begin opens a ramp at frame with one lead for every lead-in length the
// preceding hold allows. Hold frames show base, so a lead-in of h frames
// limits every channel's slope to tol/4h.
func (r *ramp) begin(frame uint32, tol int64) {
	r.start = frame
	r.leads = r.leads[:0]
	for h := range min(int64(frame-r.holdFrom), MaxLeadIn) + 1 {
		l := lead{frames: h, bounded: h > 0}
		if l.bounded {
			for c := range 3 {
				l.lo[c] = frac{-tol, 4 * h}
				l.hi[c] = frac{tol, 4 * h}
			}
		}
		r.leads = append(r.leads, l)
	}
}

func channels(c uint32) [3]int64 {
	return [3]int64{int64(c >> 16 & 0xff), int64(c >> 8 & 0xff), int64(c & 0xff)}
}

// admit extends the ramp by v if some lead-in and slope still explain every
// sample, and records the lead-ins for which the ramp could end exactly on v.
func (r *ramp) admit(v uint32, tol int64) bool {
	j := int64(len(r.samples))
	base, target := channels(r.base), channels(v)
	var delta [3]int64
	for c := range 3 {
		delta[c] = target[c] - base[c]
	}
	next := r.spare[:0]
	var exact []int64
	for _, l := range r.leads {
		n := l.frames + j + 1
		if !l.narrow(delta, n, tol) {
			continue
		}
		next = append(next, l)
		if len(exact) < maxExact && l.fits(delta, n) {
			exact = append(exact, l.frames)
		}
	}
	if len(next) == 0 {
		return false
	}
	r.leads, r.spare = next, r.leads[:0]
	r.samples = append(r.samples, v)
	r.exact = append(r.exact, exact)
	return true
}

// narrow intersects l's slope bounds with a sample delta away from base, n
// frames into the ramp. It reports whether any slope remains.
func (l *lead) narrow(delta [3]int64, n, tol int64) bool {
	for c := range 3 {
		lo := frac{4*delta[c] - tol, 4 * n}
		hi := frac{4*delta[c] + tol, 4 * n}
		if !l.bounded || l.lo[c].le(lo) {
			l.lo[c] = lo
		}
		if !l.bounded || hi.le(l.hi[c]) {
			l.hi[c] = hi
		}
		if !l.lo[c].le(l.hi[c]) {
			return false
		}
	}
	l.bounded = true
	return true
}

func (l *lead) fits(delta [3]int64, n int64) bool {
	for c := range 3 {
		slope := frac{delta[c], n}
		if !l.lo[c].le(slope) || !slope.le(l.hi[c]) {
			return false
		}
	}
	return true
}

func (d *Decompiler) close(slot int) {
	r := &d.ramps[slot]
	e, h := r.settle()
	color := r.samples[e]
	end := r.start + uint32(e) + 1
	d.emit(slot, groupKey{color: color, end: end, duration: uint32(h) + uint32(e) + 1})

	rest := slices.Clone(r.samples[e+1:])
	r.base = color
	r.holdFrom = end
	r.samples = r.samples[:0]
	r.exact = r.exact[:0]
	r.leads = r.leads[:0]
	for j, v := range rest {
		d.feed(slot, end+uint32(j), v)
	}
}

// settle picks the sample the ramp ends on and its lead-in. It prefers the
// latest exact end, backed off over trailing repeats of the final color,
// and accepts a choice only when re-rendering it reproduces the hold and
// every sample up to the end. A one-frame step to the first sample always
// reproduces.
func (r *ramp) settle() (int, int64) {
	pref := len(r.samples) - 1
	for pref > 0 && len(r.exact[pref]) == 0 {
		pref--
	}
	for pref > 0 && len(r.exact[pref-1]) > 0 && r.samples[pref-1] == r.samples[pref] {
		pref--
	}
	try := func(e int) (int64, bool) {
		for _, h := range r.exact[e] {
			if r.reproduces(e, h) {
				return h, true
			}
		}
		return 0, false
	}
	if h, ok := try(pref); ok {
		return pref, h
	}
	for e := len(r.samples) - 1; e > 0; e-- {
		if e == pref {
			continue
		}
		if h, ok := try(e); ok {
			return e, h
		}
	}
	return 0, 0
}

func (r *ramp) reproduces(e int, lead int64) bool {
	duration := lead + int64(e) + 1
	target := r.samples[e]
	for step := int64(1); step <= duration; step++ {
		want := r.base
		if step > lead {
			want = r.samples[step-lead-1]
		}
		if compiler.Interpolate(r.base, target, step, duration) != want {
			return false
		}
	}
	return true
}

func (d *Decompiler) emit(slot int, key groupKey) {
	g, ok := d.pending[key]
	if !ok {
		g = &group{seq: d.seq, key: key, pixels: pixelset.New(d.slots[slot].Width())}
		d.seq++
		d.pending[key] = g
	}
	g.pixels = pixelset.Union(g.pixels, d.slots[slot])
}

func (d *Decompiler) flush(frontier uint32) {
	var ready []*group
	for key, g := range d.pending {
		if key.end < frontier {
			ready = append(ready, g)
		}
	}
	d.release(ready)
}

func (d *Decompiler) flushAll() {
	ready := make([]*group, 0, len(d.pending))
	for _, g := range d.pending {
		ready = append(ready, g)
	}
	d.release(ready)
}

func (d *Decompiler) release(ready []*group) {
	slices.SortFunc(ready, func(a, b *group) int {
		return cmp.Or(cmp.Compare(a.key.end, b.key.end), cmp.Compare(a.seq, b.seq))
	})
	for _, g := range ready {
		delete(d.pending, g.key)
		d.sink.Insert(&timeline.Keypoint{
			Color:    g.key.color,
			End:      g.key.end,
			Duration: g.key.duration,
			Pixels:   g.pixels,
			Source:   d.source,
		})
		d.emitted++
	}
}
