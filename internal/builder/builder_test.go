package builder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"ledsign/internal/hardware"
	"ledsign/internal/pixelset"
	"ledsign/internal/program"
)

func TestColorConversions(t *testing.T) {
	require.Equal(t, uint32(0x808080), HSV(0, 0, 0.5))
	require.Equal(t, uint32(0xffff00), HSV(60, 1, 1))
	require.Equal(t, uint32(0xff0000), HSV(360, 1, 1))
	require.Equal(t, uint32(0x0000ff), HSV(-120, 1, 1))
	require.Equal(t, uint32(0x00ff00), HSV(120, 2, 1))

	require.Equal(t, uint32(0xff0080), RGB(300, -4, 127.5))
	require.Equal(t, uint32(0x010203), RGB(1, 2, 3))

	c, err := ParseColor("#12abEF")
	require.NoError(t, err)
	require.Equal(t, uint32(0x12abef), c)
	for _, bad := range []string{"12abef", "#12abe", "#12abzz"} {
		_, err := ParseColor(bad)
		require.Error(t, err, bad)
	}
}

func TestBuildPlacesKeypointsAtCursor(t *testing.T) {
	hw := hardware.Uniform(4)
	prog := program.New(hw, program.Options{})
	all := hw.Mask()

	report, err := Build(context.Background(), prog, Options{}, func(b *Builder) error {
		require.Equal(t, uint32(1), b.At(0))
		require.Equal(t, uint32(60), b.At(1))
		b.Keypoint(0xff0000, all, Duration(1))
		require.Equal(t, uint32(90), b.After(0.5))
		b.Keypoint(0x00ff00, pixelset.Of(hw.Width(), 1), Duration(0.25))
		b.Keypoint(0x0000ff, pixelset.Of(hw.Width(), 2), EndingAt(2.5))
		require.InDelta(t, 1.5, b.Time(), 1e-9)
		require.InDelta(t, 1.0/60, b.DeltaTime(), 1e-12)
		require.Same(t, hw, b.Hardware())
		b.After(-10)
		require.Equal(t, uint32(1), b.At(-3))
		b.At(3)
		b.End()
		return nil
	})
	require.NoError(t, err)
	require.False(t, report.HasErrors())
	require.Equal(t, uint32(180), prog.Duration())

	kps, err := prog.Keypoints(context.Background(), pixelset.Set{})
	require.NoError(t, err)
	require.Len(t, kps, 3)
	require.Equal(t, uint32(60), kps[0].End)
	require.Equal(t, uint32(60), kps[0].Duration)
	require.Equal(t, uint32(90), kps[1].End)
	require.Equal(t, uint32(15), kps[1].Duration)
	require.Equal(t, uint32(150), kps[2].End)
	require.Equal(t, uint32(1), kps[2].Duration)
	require.True(t, strings.HasPrefix(kps[0].Source, "builder_test.go:"), kps[0].Source)
}

func TestBuildFlagsConflicts(t *testing.T) {
	hw := hardware.Uniform(2)
	prog := program.New(hw, program.Options{})
	report, err := Build(context.Background(), prog, Options{}, func(b *Builder) error {
		b.At(1)
		b.Keypoint(0xffffff, hw.Mask(), Duration(1))
		b.Keypoint(0x000000, pixelset.Of(hw.Width(), 0), Duration(0.5))
		return nil
	})
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	require.True(t, prog.HasErrors())
}

func TestBuildSkipVerifyAndFailure(t *testing.T) {
	prog := program.New(hardware.Uniform(2), program.Options{})
	_, err := Build(context.Background(), prog, Options{SkipVerify: true}, func(*Builder) error { return nil })
	require.NoError(t, err)
	require.True(t, prog.HasErrors())

	prog = program.New(hardware.Uniform(2), program.Options{})
	boom := errors.New("boom")
	_, err = Build(context.Background(), prog, Options{}, func(*Builder) error { return boom })
	require.ErrorIs(t, err, boom)
	require.True(t, prog.HasErrors())
}

func TestBuildsAreSerialized(t *testing.T) {
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prog := program.New(hardware.Uniform(1), program.Options{})
			_, _ = Build(context.Background(), prog, Options{}, func(b *Builder) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				b.After(1)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), peak.Load())
}
