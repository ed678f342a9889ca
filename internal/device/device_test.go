package device

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledsign/internal/geocache"
	"ledsign/internal/hardware"
	"ledsign/internal/pixelset"
	"ledsign/internal/protocol"
	"ledsign/internal/testsupport"
	"ledsign/internal/timeline"
	"ledsign/internal/transfer"
	"ledsign/internal/wire"
)

const signPath = "/dev/bus/usb/001/004"

func openSign(t *testing.T, sign *testsupport.Sign, opts Options) *Device {
	t.Helper()
	opts.Transfer = transfer.Options{BusyInterval: time.Millisecond}
	d, err := Open(context.Background(), testsupport.NewBackend(signPath, sign), "", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func describe(kps []*timeline.Keypoint) []string {
	out := make([]string, 0, len(kps))
	for _, kp := range kps {
		out = append(out, fmt.Sprintf("%06x end=%d dur=%d pixels=%s", kp.Color, kp.End, kp.Duration, kp.Pixels))
	}
	slices.Sort(out)
	return out
}

func TestOpenReadsMetadata(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A', 'B'})
	d := openSign(t, sign, Options{})

	require.Equal(t, signPath, d.Path())
	require.Equal(t, AccessReadWrite, d.AccessMode())
	require.Equal(t, "read-write", d.AccessMode().String())

	psu, err := d.PSUCurrent()
	require.NoError(t, err)
	require.InDelta(t, 2.0, psu, 1e-9)

	storage, err := d.StorageSize()
	require.NoError(t, err)
	require.Equal(t, 4096, storage)

	fw, err := d.Firmware()
	require.NoError(t, err)
	require.Equal(t, "deadbeef000102", fw)

	serial, err := d.Serial()
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdef", serial)

	paused, err := d.Paused()
	require.NoError(t, err)
	require.False(t, paused)

	hw, err := d.Hardware()
	require.NoError(t, err)
	require.Equal(t, 8, hw.PixelCount())
	require.Equal(t, 5, hw.LedDepth())

	require.True(t, d.Program().Loaded())
}

func TestOpenWithoutSigns(t *testing.T) {
	_, err := Open(context.Background(), &testsupport.Backend{}, "", Options{})
	require.ErrorIs(t, err, protocol.ErrDeviceNotFound)
}

func TestOpenTwiceIsInUse(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	backend := testsupport.NewBackend(signPath, sign)
	d, err := Open(context.Background(), backend, signPath, Options{})
	require.NoError(t, err)
	defer d.Close()

	_, err = Open(context.Background(), backend, signPath, Options{})
	require.ErrorIs(t, err, protocol.ErrDeviceInUse)
}

func TestFailedHandshakeClosesTransport(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	sign.RejectVersion = true
	_, err := Open(context.Background(), testsupport.NewBackend(signPath, sign), signPath, Options{})
	require.ErrorIs(t, err, protocol.ErrUnsupportedProtocol)
	require.Equal(t, 1, sign.Closes())
}

func TestBrightnessSteps(t *testing.T) {
	want := []float64{0, 0.15, 0.30, 0.45, 0.55, 0.70, 0.85, 1.0}
	for raw, expected := range want {
		sign := testsupport.NewSign(hardware.Config{'A'})
		sign.Info.Brightness = uint8(raw)
		d := openSign(t, sign, Options{})
		got, err := d.Brightness()
		require.NoError(t, err)
		require.InDelta(t, expected, got, 1e-9, "raw %d", raw)
	}
}

func TestStatusIsCached(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	sign.Status = protocol.DriverStatus{Temperature: 100, Load: 320, ProgramOffset: 30, CurrentMicroamps: 1500000}
	d := openSign(t, sign, Options{StatusReload: time.Second})

	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	status, err := d.Status(ctx)
	require.NoError(t, err)
	require.InDelta(t, 437.226612-100*0.468137, status.Temperature, 1e-9)
	require.InDelta(t, 2.0, status.Load, 1e-9)
	require.InDelta(t, 0.5, status.ProgramTime, 1e-9)
	require.InDelta(t, 1.5, status.Current, 1e-9)
	require.Equal(t, 1, sign.StatusRequests())

	now = now.Add(500 * time.Millisecond)
	_, err = d.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sign.StatusRequests())

	now = now.Add(600 * time.Millisecond)
	_, err = d.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sign.StatusRequests())

	require.Equal(t, time.Second, d.SetStatusReloadInterval(0))
	_, err = d.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, sign.StatusRequests())
}

func TestUploadThenLoad(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A', 'B'})
	sign.Busy = 1
	sign.Chunk = 500
	d := openSign(t, sign, Options{})
	ctx := context.Background()

	p, err := d.NewProgram()
	require.NoError(t, err)
	w := p.Hardware().Width()
	p.AddKeypoint(0xff8000, 30, 30, pixelset.Of(w, 0, 3, 6), "a")
	p.AddKeypoint(0x0000ff, 45, 10, pixelset.Of(w, 3), "b")
	p.SetDuration(60)
	compiled, err := p.Compile(ctx, false)
	require.NoError(t, err)

	var last int
	require.NoError(t, d.Upload(ctx, compiled, func(done, total int) { last = done }))
	require.Equal(t, len(compiled.Payload), last)

	header, payload := sign.Stored()
	require.Equal(t, compiled.Header, header)
	require.Equal(t, compiled.Payload, payload)
	require.InDelta(t, 1.0, d.ProgramDuration(), 1e-9)

	stored := d.Program()
	require.False(t, stored.Loaded())
	require.Equal(t, uint32(60), stored.Duration())

	want, err := p.Keypoints(ctx, pixelset.Set{})
	require.NoError(t, err)
	got, err := stored.Keypoints(ctx, pixelset.Set{})
	require.NoError(t, err)
	require.Equal(t, describe(want), describe(got))
}

func TestUploadRejectedForReadOnlySign(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	sign.Info.Access = 1
	d := openSign(t, sign, Options{})
	require.Equal(t, AccessReadOnly, d.AccessMode())

	p, err := d.NewProgram()
	require.NoError(t, err)
	compiled, err := p.Compile(context.Background(), false)
	require.NoError(t, err)
	require.ErrorIs(t, d.Upload(context.Background(), compiled, nil), protocol.ErrAccessDenied)
}

func TestUploadRejectsFileLayout(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A', 'B'})
	d := openSign(t, sign, Options{})

	p, err := d.NewProgram()
	require.NoError(t, err)
	compiled, err := p.CompileFile(context.Background(), false)
	require.NoError(t, err)
	require.ErrorIs(t, d.Upload(context.Background(), compiled, nil), wire.ErrGeometryMismatch)
	require.NotContains(t, sign.Kinds(), protocol.KindProgramSetup)
}

func TestCloseInvalidatesHandle(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	backend := testsupport.NewBackend(signPath, sign)
	d, err := Open(context.Background(), backend, signPath, Options{})
	require.NoError(t, err)

	p, err := d.NewProgram()
	require.NoError(t, err)
	p.AddKeypoint(0xffffff, 10, 5, pixelset.Of(p.Hardware().Width(), 0), "")
	p.SetDuration(20)
	compiled, err := p.Compile(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, d.Upload(context.Background(), compiled, nil))

	lazy := d.Program()
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	require.Equal(t, 1, sign.Closes())

	require.Empty(t, d.Path())
	require.Equal(t, AccessNone, d.AccessMode())
	_, err = d.Firmware()
	require.ErrorIs(t, err, protocol.ErrDeviceDisconnected)
	_, err = d.Status(context.Background())
	require.ErrorIs(t, err, protocol.ErrDeviceDisconnected)

	_, err = lazy.Keypoints(context.Background(), pixelset.Set{})
	require.ErrorIs(t, err, protocol.ErrDeviceDisconnected)
	require.True(t, lazy.HasErrors())
}

func TestGeometryCacheAvoidsRefetch(t *testing.T) {
	cache, err := geocache.Open(filepath.Join(t.TempDir(), "geometry.db"), nil)
	require.NoError(t, err)
	defer cache.Close()

	sign := testsupport.NewSign(hardware.Config{'A', 'B', 'A'})
	backend := testsupport.NewBackend(signPath, sign)
	for range 2 {
		d, err := Open(context.Background(), backend, signPath, Options{Cache: cache})
		require.NoError(t, err)
		require.NoError(t, d.Close())
	}

	fetches := 0
	for _, k := range sign.Kinds() {
		if k == protocol.KindHardwareDataRequest {
			fetches++
		}
	}
	require.Equal(t, 2, fetches)
}
