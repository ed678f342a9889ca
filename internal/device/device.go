package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"ledsign/internal/geocache"
	"ledsign/internal/hardware"
	"ledsign/internal/logging"
	"ledsign/internal/program"
	"ledsign/internal/protocol"
	"ledsign/internal/transfer"
	"ledsign/internal/wire"
)

// DefaultStatusReload is how long driver telemetry is reused before the
// sign is asked again.
const DefaultStatusReload = 500 * time.Millisecond

// AccessMode is the permission a sign grants the host.
type AccessMode uint8

const (
	AccessNone AccessMode = iota
	AccessReadOnly
	AccessReadWrite
)

func (a AccessMode) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessReadOnly:
		return "read-only"
	case AccessReadWrite:
		return "read-write"
	}
	return fmt.Sprintf("access(%d)", uint8(a))
}

// Status is a snapshot of the LED driver telemetry.
type Status struct {
	// Temperature in degrees Celsius.
	Temperature float64
	// Load is the fraction of driver capacity in use.
	Load float64
	// ProgramTime is the playback position in seconds.
	ProgramTime float64
	// Current is the measured draw in amperes.
	Current float64
}

// Options configures a session. Zero values select defaults.
type Options struct {
	StatusReload time.Duration
	Transfer     transfer.Options
	Program      program.Options
	// Cache, when set, serves geometry tables instead of the sign.
	Cache  *geocache.Cache
	Logger *slog.Logger
}

// Device is an open sign. Its methods are safe for concurrent use, but the
// Program it hands out is not.
type Device struct {
	mu         sync.Mutex
	path       string
	client     *protocol.Client
	info       protocol.DeviceInfo
	access     AccessMode
	hw         *hardware.Hardware
	header     wire.Header
	prog       *program.Program
	generation uint64
	closed     bool

	reload   time.Duration
	status   Status
	statusAt time.Time
	now      func() time.Time

	opts   Options
	logger *slog.Logger
}

// Enumerate lists the signs backend can reach.
func Enumerate(ctx context.Context, backend protocol.Backend) ([]string, error) {
	return backend.Enumerate(ctx)
}

// Open connects to the sign at path, or to the first sign found when path is
// empty, and reads its description and geometry.
func Open(ctx context.Context, backend protocol.Backend, path string, opts Options) (*Device, error) {
	if path == "" {
		paths, err := backend.Enumerate(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate signs: %w", err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("%w: no sign attached", protocol.ErrDeviceNotFound)
		}
		path = paths[0]
	}
	logger := logging.NewComponentLogger(opts.Logger, "device").With(logging.String(logging.FieldDevice, path))
	ctx = logging.WithDevice(ctx, path)

	tr, err := backend.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	client := protocol.NewClient(tr)
	d, err := newDevice(ctx, path, client, opts, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("sign opened",
		logging.String(logging.FieldEventType, "device_opened"),
		logging.String("serial", fmt.Sprintf("%016x", d.info.Serial)),
		logging.String("hardware", d.hw.String()),
		logging.String("access", d.access.String()),
	)
	return d, nil
}

func newDevice(ctx context.Context, path string, client *protocol.Client, opts Options, logger *slog.Logger) (*Device, error) {
	info, err := client.Handshake(ctx)
	if err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", path, err)
	}
	var fetcher hardware.Fetcher = client
	if opts.Cache.Enabled() {
		fetcher = opts.Cache.Wrap(client)
	}
	hw, err := hardware.New(ctx, hardware.Config(info.Config), fetcher)
	if err != nil {
		return nil, fmt.Errorf("read hardware of %s: %w", path, err)
	}
	reload := opts.StatusReload
	if reload <= 0 {
		reload = DefaultStatusReload
	}
	if opts.Transfer.Logger == nil {
		opts.Transfer.Logger = opts.Logger
	}
	if opts.Program.Logger == nil {
		opts.Program.Logger = opts.Logger
	}
	d := &Device{
		path:   path,
		client: client,
		info:   info,
		access: AccessMode(info.Access & 0x0f),
		hw:     hw,
		header: wire.Header{Control: info.Control, CRC: info.CRC},
		reload: reload,
		now:    time.Now,
		opts:   opts,
		logger: logger,
	}
	d.prog = d.deviceProgram()
	return d, nil
}

// deviceProgram binds a lazy program to the current generation. Callers
// hold d.mu or own d exclusively.
func (d *Device) deviceProgram() *program.Program {
	gen := d.generation
	header := d.header
	return program.FromDevice(d.hw, header, func(ctx context.Context, w io.Writer) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed || d.generation != gen {
			return fmt.Errorf("%w: sign was closed", protocol.ErrDeviceDisconnected)
		}
		return transfer.Download(logging.WithDevice(ctx, d.path), d.client, header, w, d.opts.Transfer)
	}, d.opts.Program)
}

func (d *Device) check() error {
	if d.closed {
		return fmt.Errorf("%w: sign handle closed", protocol.ErrDeviceDisconnected)
	}
	return nil
}

// Close releases the transport. Afterwards every getter fails and programs
// obtained earlier can no longer load.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.generation++
	d.access = AccessNone
	err := d.client.Close()
	d.logger.Info("sign closed", logging.String(logging.FieldEventType, "device_closed"))
	return err
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("sign id=%016x fw=%x", d.info.Serial, d.info.Firmware[:])
}

// Path returns the device node, or "" once closed.
func (d *Device) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ""
	}
	return d.path
}

// AccessMode returns the granted permission; AccessNone once closed.
func (d *Device) AccessMode() AccessMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.access
}

// PSUCurrent is the configured power supply limit in amperes.
func (d *Device) PSUCurrent() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	return float64(d.info.PSUCurrent&0x7f) / 10, nil
}

// StorageSize is the program storage capacity in bytes.
func (d *Device) StorageSize() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	return int(d.info.StorageKiB) << 10, nil
}

// Hardware returns the pixel layout of the sign.
func (d *Device) Hardware() (*hardware.Hardware, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.hw, nil
}

// Firmware returns the firmware revision as hex.
func (d *Device) Firmware() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", d.info.Firmware[:]), nil
}

// RawSerial returns the serial number.
func (d *Device) RawSerial() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	return d.info.Serial, nil
}

// Serial returns the serial number as 16 hex digits.
func (d *Device) Serial() (string, error) {
	raw, err := d.RawSerial()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", raw), nil
}

// Brightness returns the driver brightness in [0, 1], in steps of 0.05.
func (d *Device) Brightness() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	return math.RoundToEven(float64(d.info.Brightness&0x0f)*20/7) / 20, nil
}

// Paused reports whether playback is stopped.
func (d *Device) Paused() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return false, err
	}
	return d.info.Flags&1 == 0, nil
}

// ProgramDuration is the playback length of the stored program in seconds.
func (d *Device) ProgramDuration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header.Duration().Seconds()
}

// StatusReloadInterval returns how long telemetry is cached.
func (d *Device) StatusReloadInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reload
}

// SetStatusReloadInterval changes the telemetry cache time and returns the
// previous value.
func (d *Device) SetStatusReloadInterval(interval time.Duration) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.reload
	d.reload = interval
	return old
}

// Status returns the driver telemetry, asking the sign at most once per
// reload interval.
func (d *Device) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return Status{}, err
	}
	now := d.now()
	if !d.statusAt.IsZero() && now.Before(d.statusAt.Add(d.reload)) {
		return d.status, nil
	}
	raw, err := d.client.DriverStatus(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("driver status: %w", err)
	}
	d.status = Status{
		Temperature: 437.226612 - float64(raw.Temperature)*0.468137,
		Load:        float64(raw.Load) / 160,
		ProgramTime: float64(raw.ProgramOffset) / float64(d.header.OffsetDivisor()),
		Current:     float64(raw.CurrentMicroamps) * 1e-6,
	}
	d.statusAt = now
	return d.status, nil
}

// Program returns the program stored on the sign. Its keypoints are
// downloaded on first use.
func (d *Device) Program() *program.Program {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prog
}

// NewProgram returns an empty program for this sign's hardware.
func (d *Device) NewProgram() (*program.Program, error) {
	hw, err := d.Hardware()
	if err != nil {
		return nil, err
	}
	return program.New(hw, d.opts.Program), nil
}

// Upload replaces the stored program with c, which must be compiled in
// device layout for this sign. progress may be nil.
func (d *Device) Upload(ctx context.Context, c *wire.Compiled, progress func(done, total int)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.access != AccessReadWrite {
		return fmt.Errorf("%w: sign grants %s access", protocol.ErrAccessDenied, d.access)
	}
	if c.Lanes() != d.hw.LedDepth() {
		return fmt.Errorf("%w: program has %d lanes, sign has led depth %d",
			wire.ErrGeometryMismatch, c.Lanes(), d.hw.LedDepth())
	}
	opts := d.opts.Transfer
	opts.Progress = progress
	if err := transfer.Upload(logging.WithDevice(ctx, d.path), d.client, c, opts); err != nil {
		return err
	}
	d.header = c.Header
	d.info.Control = c.Header.Control
	d.info.CRC = c.Header.CRC
	d.statusAt = time.Time{}
	d.prog = d.deviceProgram()
	return nil
}
