package program_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"ledsign/internal/hardware"
	"ledsign/internal/pixelset"
	"ledsign/internal/program"
	"ledsign/internal/testsupport"
	"ledsign/internal/timeline"
	"ledsign/internal/wire"
)

func signHardware() *hardware.Hardware {
	return hardware.FromGeometries(hardware.Config{'A', 'B'}, testsupport.Geometries())
}

func describe(kps []*timeline.Keypoint) []string {
	out := make([]string, 0, len(kps))
	for _, kp := range kps {
		out = append(out, fmt.Sprintf("%06x end=%d dur=%d pixels=%s", kp.Color, kp.End, kp.Duration, kp.Pixels))
	}
	slices.Sort(out)
	return out
}

func sample(t *testing.T, hw *hardware.Hardware) *program.Program {
	t.Helper()
	p := program.New(hw, program.Options{})
	w := hw.Width()
	require.True(t, p.AddKeypoint(0xff0000, 30, 30, pixelset.Of(w, 0, 1, 2), "a"))
	require.True(t, p.AddKeypoint(0x00ff00, 50, 10, pixelset.Of(w, 5, 6), "b"))
	require.True(t, p.AddKeypoint(0x0000ff, 60, 20, pixelset.Of(w, 0), "c"))
	p.SetDuration(70)
	return p
}

func TestAddKeypointMasksAbsentPixels(t *testing.T) {
	hw := signHardware()
	p := program.New(hw, program.Options{})

	require.False(t, p.AddKeypoint(0xffffff, 10, 5, pixelset.Of(hw.Width(), 8, 9), ""))
	require.True(t, p.AddKeypoint(0x1ffffff, 10, 0, pixelset.Of(hw.Width(), 4, 8), ""))

	kps, err := p.Keypoints(context.Background(), pixelset.Set{})
	require.NoError(t, err)
	require.Len(t, kps, 1)
	require.Equal(t, uint32(0xffffff), kps[0].Color)
	require.Equal(t, uint32(1), kps[0].Duration)
	require.Equal(t, []int{4}, slices.Collect(kps[0].Pixels.Indices()))
}

func TestSaveOpenRoundTrip(t *testing.T) {
	hw := signHardware()
	ctx := context.Background()
	p := sample(t, hw)
	report, err := p.Verify(ctx)
	require.NoError(t, err)
	require.False(t, report.HasErrors())

	path := filepath.Join(t.TempDir(), "show.bin")
	require.NoError(t, p.Save(ctx, path, false))

	loaded, err := program.Open(path, hw, program.Options{})
	require.NoError(t, err)
	require.Equal(t, uint32(70), loaded.Duration())

	want, err := p.Keypoints(ctx, pixelset.Set{})
	require.NoError(t, err)
	got, err := loaded.Keypoints(ctx, pixelset.Set{})
	require.NoError(t, err)
	require.Equal(t, describe(want), describe(got))
}

func TestOpenCorruptFile(t *testing.T) {
	hw := signHardware()
	path := filepath.Join(t.TempDir(), "show.bin")
	require.NoError(t, sample(t, hw).Save(context.Background(), path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[wire.HeaderSize+17] ^= 0x40
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = program.Open(path, hw, program.Options{})
	require.ErrorIs(t, err, wire.ErrMalformedProgram)
	require.ErrorIs(t, err, wire.ErrIntegrityMismatch)
}

func TestOpenRejectsOtherHardware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.bin")
	require.NoError(t, sample(t, signHardware()).Save(context.Background(), path, true))

	_, err := program.Open(path, hardware.Uniform(20), program.Options{})
	require.ErrorIs(t, err, wire.ErrGeometryMismatch)
}

func TestLazyLoadFromDevice(t *testing.T) {
	hw := signHardware()
	ctx := context.Background()
	src := sample(t, hw)
	compiled, err := src.Compile(ctx, true)
	require.NoError(t, err)
	require.Equal(t, hw.LedDepth(), compiled.Lanes())

	calls := 0
	p := program.FromDevice(hw, compiled.Header, func(_ context.Context, w io.Writer) error {
		calls++
		_, err := w.Write(compiled.Payload)
		return err
	}, program.Options{})
	require.False(t, p.Loaded())
	require.Equal(t, uint32(70), p.Duration())

	want, err := src.Keypoints(ctx, pixelset.Set{})
	require.NoError(t, err)
	got, err := p.Keypoints(ctx, pixelset.Set{})
	require.NoError(t, err)
	require.Equal(t, describe(want), describe(got))
	require.True(t, p.Loaded())

	_, err = p.Keypoints(ctx, pixelset.Of(hw.Width(), 5))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestLazyLoadChecksumMismatchDiscardsKeypoints(t *testing.T) {
	hw := signHardware()
	ctx := context.Background()
	compiled, err := sample(t, hw).Compile(ctx, true)
	require.NoError(t, err)

	p := program.FromDevice(hw, compiled.Header, func(_ context.Context, w io.Writer) error {
		if _, err := w.Write(compiled.Payload); err != nil {
			return err
		}
		return wire.ErrIntegrityMismatch
	}, program.Options{})

	_, err = p.Keypoints(ctx, pixelset.Set{})
	require.ErrorIs(t, err, wire.ErrIntegrityMismatch)
	require.True(t, p.HasErrors())

	kps, err := p.Keypoints(ctx, pixelset.Set{})
	require.NoError(t, err)
	require.Empty(t, kps)

	_, err = p.Compile(ctx, false)
	require.ErrorIs(t, err, program.ErrUnresolvedErrors)
}

func TestLazyLoadRejectsLaneMismatch(t *testing.T) {
	hw := signHardware()
	header := wire.Header{Control: wire.NewControl(2, 10*wire.FrameSize(2))}
	p := program.FromDevice(hw, header, func(context.Context, io.Writer) error {
		t.Fatal("load must not run")
		return nil
	}, program.Options{})

	_, err := p.Verify(context.Background())
	require.ErrorIs(t, err, wire.ErrGeometryMismatch)
	require.True(t, p.HasErrors())
}

func TestEmptyDeviceProgramIsLoaded(t *testing.T) {
	p := program.FromDevice(signHardware(), wire.Header{}, nil, program.Options{})
	require.True(t, p.Loaded())
	require.Equal(t, uint32(0), p.Duration())
}

func TestCompileRequiresCleanVerification(t *testing.T) {
	hw := signHardware()
	ctx := context.Background()
	p := program.New(hw, program.Options{})
	w := hw.Width()
	p.AddKeypoint(0xff0000, 20, 10, pixelset.Of(w, 0), "first")
	p.AddKeypoint(0x00ff00, 25, 10, pixelset.Of(w, 0, 1), "second")
	p.SetDuration(30)

	report, err := p.Verify(ctx)
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	require.True(t, p.HasErrors())

	_, err = p.Compile(ctx, false)
	require.ErrorIs(t, err, program.ErrUnresolvedErrors)
	require.ErrorIs(t, p.Save(ctx, filepath.Join(t.TempDir(), "x.bin"), false), program.ErrUnresolvedErrors)

	compiled, err := p.Compile(ctx, true)
	require.NoError(t, err)
	require.Equal(t, uint32(30), compiled.Frames())
	require.Equal(t, 30*wire.FrameSize(hw.LedDepth()), len(compiled.Payload))
}
