package program

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"ledsign/internal/compiler"
	"ledsign/internal/decompiler"
	"ledsign/internal/hardware"
	"ledsign/internal/logging"
	"ledsign/internal/pixelset"
	"ledsign/internal/timeline"
	"ledsign/internal/verifier"
	"ledsign/internal/wire"
)

// ErrUnresolvedErrors is returned by Compile and Save when verification found
// conflicts and the caller did not bypass them.
var ErrUnresolvedErrors = errors.New("unresolved program errors")

// LoadFunc streams the stored payload of a sign into w. It must fail before
// touching the transport when the sign is no longer open.
type LoadFunc func(ctx context.Context, w io.Writer) error

// Options tunes decompilation and logging.
type Options struct {
	Tolerance int
	Logger    *slog.Logger
}

type remote struct {
	header wire.Header
	load   LoadFunc
}

// Program is a keypoint timeline bound to a hardware layout. It is not safe
// for concurrent use.
type Program struct {
	hw       *hardware.Hardware
	tl       *timeline.Timeline
	frames   uint32
	hasError bool
	pending  *remote
	opts     Options
	logger   *slog.Logger
}

// New returns an empty program one frame long.
func New(hw *hardware.Hardware, opts Options) *Program {
	return &Program{
		hw:     hw,
		tl:     timeline.New(),
		frames: 1,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "program"),
	}
}

// FromDevice returns a program standing in for the one a sign reports in
// header. Keypoints are fetched through load on first use.
func FromDevice(hw *hardware.Hardware, header wire.Header, load LoadFunc, opts Options) *Program {
	p := New(hw, opts)
	p.frames = header.Frames()
	if !header.Empty() {
		p.pending = &remote{header: header, load: load}
	}
	return p
}

// Open reads the program file at path for hw.
func Open(path string, hw *hardware.Hardware, opts Options) (*Program, error) {
	c, err := wire.Load(path)
	if err != nil {
		return nil, err
	}
	p := New(hw, opts)
	if err := p.decompileFile(c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// FromCompiled decompiles a program in file layout.
func FromCompiled(c *wire.Compiled, hw *hardware.Hardware, opts Options) (*Program, error) {
	p := New(hw, opts)
	if err := p.decompileFile(c); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Program) decompileFile(c *wire.Compiled) error {
	if c.Lanes() != p.hw.FileLanes() {
		return fmt.Errorf("%w: %w: program has %d lanes, %s needs %d",
			wire.ErrMalformedProgram, wire.ErrGeometryMismatch, c.Lanes(), p.hw, p.hw.FileLanes())
	}
	p.frames = c.Frames()
	d, err := p.decompiler(p.tl, c.Lanes(), p.hw.FileSlots(), "file")
	if err != nil {
		return err
	}
	if _, err := d.Write(c.Payload); err != nil {
		return err
	}
	return d.Terminate()
}

func (p *Program) decompiler(sink decompiler.Sink, lanes int, slots []pixelset.Set, source string) (*decompiler.Decompiler, error) {
	return decompiler.New(sink, lanes, slots, decompiler.Options{
		Tolerance: p.opts.Tolerance,
		Source:    source,
		Logger:    p.logger,
	})
}

// Hardware returns the layout the program targets.
func (p *Program) Hardware() *hardware.Hardware {
	return p.hw
}

// Duration returns the program length in frames.
func (p *Program) Duration() uint32 {
	return p.frames
}

// SetDuration sets the program length in frames. Lengths below one frame
// are raised to one.
func (p *Program) SetDuration(frames uint32) {
	p.frames = max(frames, 1)
}

// Loaded reports whether the keypoints are available without a download.
func (p *Program) Loaded() bool {
	return p.pending == nil
}

// HasErrors reports whether the last verification found conflicts or a load
// failed.
func (p *Program) HasErrors() bool {
	return p.hasError
}

// MarkError flags the program as failed, for example when verification was
// skipped on purpose.
func (p *Program) MarkError() {
	p.hasError = true
}

func (p *Program) String() string {
	state := ""
	if !p.Loaded() {
		state = "[unloaded]"
	}
	return fmt.Sprintf("program%s hardware=%s duration=%.3fs", state, p.hw, timeline.Seconds(int64(p.frames)))
}

// AddKeypoint records a keypoint over the physically present pixels of mask.
// It reports false when mask holds no present pixel.
func (p *Program) AddKeypoint(color, end, duration uint32, mask pixelset.Set, source string) bool {
	mask = pixelset.And(mask, p.hw.Mask())
	if mask.IsEmpty() {
		return false
	}
	p.tl.Insert(&timeline.Keypoint{
		Color:    color & 0xffffff,
		End:      end,
		Duration: max(duration, 1),
		Pixels:   mask,
		Source:   source,
	})
	return true
}

// Load downloads and decompiles the sign's program if it has not been loaded
// yet. A failed load is not retried: the program stays empty and flagged.
func (p *Program) Load(ctx context.Context) error {
	if p.pending == nil {
		return nil
	}
	r := p.pending
	p.pending = nil

	if r.header.Lanes() != p.hw.LedDepth() {
		p.hasError = true
		return fmt.Errorf("%w: sign program has %d lanes, hardware has led depth %d",
			wire.ErrGeometryMismatch, r.header.Lanes(), p.hw.LedDepth())
	}
	staged := timeline.New()
	d, err := p.decompiler(staged, r.header.Lanes(), p.hw.DeviceSlots(), "device")
	if err != nil {
		p.hasError = true
		return err
	}
	if err := r.load(ctx, d); err != nil {
		p.tl.Clear()
		p.hasError = true
		return err
	}
	if err := d.Terminate(); err != nil {
		p.tl.Clear()
		p.hasError = true
		return err
	}
	for kp := range staged.All(staged.Pixels()) {
		p.tl.Insert(&timeline.Keypoint{
			Color:    kp.Color,
			End:      kp.End,
			Duration: kp.Duration,
			Pixels:   pixelset.And(kp.Pixels, p.hw.Mask()),
			Source:   kp.Source,
		})
	}
	p.logger.Debug("program loaded from sign",
		logging.Int("keypoints", staged.Len()),
		logging.Int64("frames", int64(p.frames)),
	)
	return nil
}

// Timeline returns the keypoints, loading them first when needed.
func (p *Program) Timeline(ctx context.Context) (*timeline.Timeline, error) {
	if err := p.Load(ctx); err != nil {
		return nil, err
	}
	return p.tl, nil
}

// Keypoints returns the keypoints touching filter in key order. A zero
// filter selects every keypoint.
func (p *Program) Keypoints(ctx context.Context, filter pixelset.Set) ([]*timeline.Keypoint, error) {
	tl, err := p.Timeline(ctx)
	if err != nil {
		return nil, err
	}
	if filter.IsEmpty() {
		filter = tl.Pixels()
	}
	return slices.Collect(tl.All(filter)), nil
}

// Verify lints the keypoints and records the outcome for Compile and Save.
func (p *Program) Verify(ctx context.Context) (verifier.Report, error) {
	tl, err := p.Timeline(ctx)
	if err != nil {
		return verifier.Report{}, err
	}
	report := verifier.Verify(tl, p.logger)
	p.hasError = report.HasErrors()
	return report, nil
}

func (p *Program) render(ctx context.Context, bypass bool, layout compiler.Layout) (*wire.Compiled, error) {
	tl, err := p.Timeline(ctx)
	if err != nil {
		return nil, err
	}
	if p.hasError && !bypass {
		return nil, ErrUnresolvedErrors
	}
	return compiler.Compile(tl, layout, p.frames)
}

// Compile renders the program in device layout for upload.
func (p *Program) Compile(ctx context.Context, bypass bool) (*wire.Compiled, error) {
	return p.render(ctx, bypass, compiler.Layout{Lanes: p.hw.DeviceLanes(), Slots: p.hw.DeviceSlots()})
}

// CompileFile renders the program in the packed file layout.
func (p *Program) CompileFile(ctx context.Context, bypass bool) (*wire.Compiled, error) {
	return p.render(ctx, bypass, compiler.Layout{Lanes: p.hw.FileLanes(), Slots: p.hw.FileSlots()})
}

// Save writes the program file to path.
func (p *Program) Save(ctx context.Context, path string, bypass bool) error {
	c, err := p.CompileFile(ctx, bypass)
	if err != nil {
		return err
	}
	return c.Save(path)
}
