package builder

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"ledsign/internal/hardware"
	"ledsign/internal/pixelset"
	"ledsign/internal/program"
	"ledsign/internal/timeline"
	"ledsign/internal/verifier"
)

var buildMu sync.Mutex

// Options controls what Build does after the callback returns.
type Options struct {
	// SkipVerify leaves the program unverified and flagged, so compiling it
	// requires a bypass.
	SkipVerify bool
}

// Builder appends keypoints to one program.
type Builder struct {
	prog *program.Program
	time uint32
}

// Build runs fn against prog and then verifies the result. A failing fn
// flags the program.
func Build(ctx context.Context, prog *program.Program, opts Options, fn func(b *Builder) error) (verifier.Report, error) {
	buildMu.Lock()
	defer buildMu.Unlock()

	b := &Builder{prog: prog, time: 1}
	if err := fn(b); err != nil {
		prog.MarkError()
		return verifier.Report{}, err
	}
	if opts.SkipVerify {
		prog.MarkError()
		return verifier.Report{}, nil
	}
	return prog.Verify(ctx)
}

func frames(seconds float64) int64 {
	return int64(math.RoundToEven(seconds * timeline.FrameRate))
}

func clampFrame(f int64) uint32 {
	return uint32(min(max(f, 1), math.MaxUint32))
}

// At moves the cursor to an absolute time in seconds and returns the new
// cursor frame. The cursor never goes below frame 1.
func (b *Builder) At(seconds float64) uint32 {
	b.time = clampFrame(frames(seconds))
	return b.time
}

// After advances the cursor by seconds, which may be negative.
func (b *Builder) After(seconds float64) uint32 {
	b.time = clampFrame(int64(b.time) + frames(seconds))
	return b.time
}

// DeltaTime is the length of one frame in seconds.
func (b *Builder) DeltaTime() float64 {
	return 1.0 / timeline.FrameRate
}

// Time returns the cursor in seconds.
func (b *Builder) Time() float64 {
	return timeline.Seconds(int64(b.time))
}

// Hardware returns the layout of the program being built.
func (b *Builder) Hardware() *hardware.Hardware {
	return b.prog.Hardware()
}

// End makes the program last until the cursor.
func (b *Builder) End() {
	b.prog.SetDuration(b.time)
}

type keypointConfig struct {
	duration uint32
	end      uint32
}

// KeypointOption adjusts a single Keypoint call.
type KeypointOption func(*keypointConfig)

// Duration sets the ramp length in seconds. It defaults to one frame.
func Duration(seconds float64) KeypointOption {
	return func(c *keypointConfig) { c.duration = clampFrame(frames(seconds)) }
}

// EndingAt places the keypoint at an absolute time instead of the cursor.
func EndingAt(seconds float64) KeypointOption {
	return func(c *keypointConfig) { c.end = clampFrame(frames(seconds)) }
}

// Keypoint ramps the pixels of mask to color, arriving at the cursor. The
// caller's file and line are recorded as the keypoint source. It reports
// false when mask covers no physical pixel.
func (b *Builder) Keypoint(color uint32, mask pixelset.Set, opts ...KeypointOption) bool {
	cfg := keypointConfig{duration: 1, end: b.time}
	for _, opt := range opts {
		opt(&cfg)
	}
	return b.prog.AddKeypoint(color, cfg.end, cfg.duration, mask, caller(2))
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return timeline.UnknownSource
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func channel(v float64) uint32 {
	return uint32(min(max(math.RoundToEven(v), 0), 255))
}

// RGB packs three channels, each rounded and clamped to 0..255.
func RGB(r, g, b float64) uint32 {
	return channel(r)<<16 | channel(g)<<8 | channel(b)
}

// HSV converts hue in degrees, saturation and value in [0, 1] to RGB.
func HSV(h, s, v float64) uint32 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	h /= 60
	s = min(max(s, 0), 1)
	v *= 255
	if s == 0 {
		return channel(v) * 0x010101
	}
	i := int(h)
	s *= v
	f := s * (h - float64(i))
	p := channel(v - s)
	q := channel(v - f)
	t := channel(v - s + f)
	val := channel(v)
	switch i {
	case 0:
		return val<<16 | t<<8 | p
	case 1:
		return q<<16 | val<<8 | p
	case 2:
		return p<<16 | val<<8 | t
	case 3:
		return p<<16 | q<<8 | val
	case 4:
		return t<<16 | p<<8 | val
	}
	return val<<16 | p<<8 | q
}

// ParseColor reads a "#rrggbb" color.
func ParseColor(s string) (uint32, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || len(hex) != 6 {
		return 0, fmt.Errorf("color %q is not of the form #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q: %w", s, err)
	}
	return uint32(v), nil
}
