package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ledsign/internal/checksum"
	"ledsign/internal/pixelset"
	"ledsign/internal/timeline"
	"ledsign/internal/transpose"
	"ledsign/internal/wire"
)

func identity(lanes int) Layout {
	width := lanes * wire.SlotsPerLane
	slots := make([]pixelset.Set, width)
	for i := range slots {
		slots[i] = pixelset.Singleton(width, i)
	}
	return Layout{Lanes: lanes, Slots: slots}
}

// pixel decodes the color of slot s in frame f.
func pixel(payload []byte, lanes, f, s int) uint32 {
	frame := payload[f*wire.FrameSize(lanes):]
	for g := range 2 * lanes {
		for k, slot := range wire.GroupSlots(lanes, g) {
			if slot == s {
				return transpose.DecodeGroup(frame[g*transpose.GroupSize:])[k]
			}
		}
	}
	panic("slot out of range")
}

func compile(t *testing.T, l Layout, frames uint32, kps ...*timeline.Keypoint) *wire.Compiled {
	t.Helper()
	tl := timeline.New()
	for _, kp := range kps {
		tl.Insert(kp)
	}
	c, err := Compile(tl, l, frames)
	require.NoError(t, err)
	return c
}

func TestHeaderAndChecksum(t *testing.T) {
	c := compile(t, identity(2), 10, &timeline.Keypoint{
		Color: 0xffffff, End: 5, Duration: 1, Pixels: pixelset.Of(16, 9),
	})
	require.Len(t, c.Payload, 10*48)
	require.Equal(t, 2, c.Lanes())
	require.Equal(t, uint32(10), c.Frames())
	require.Equal(t, wire.NewControl(2, 480), c.Header.Control)
	require.Equal(t, checksum.Checksum(c.Payload), c.Header.CRC)
}

func TestRampAndHold(t *testing.T) {
	l := identity(1)
	c := compile(t, l, 61, &timeline.Keypoint{
		Color: 0xff0000, End: 60, Duration: 60, Pixels: pixelset.Of(8, 0),
	})
	require.Equal(t, uint32(0x040000), pixel(c.Payload, 1, 0, 0))
	require.Equal(t, uint32(0x080000), pixel(c.Payload, 1, 1, 0))
	require.Equal(t, uint32(0xff0000), pixel(c.Payload, 1, 59, 0))
	require.Equal(t, uint32(0xff0000), pixel(c.Payload, 1, 60, 0))
	for s := 1; s < 8; s++ {
		require.Zero(t, pixel(c.Payload, 1, 30, s), "untouched slot %d", s)
	}
}

func TestRampStartsFromPreviousColor(t *testing.T) {
	l := identity(1)
	c := compile(t, l, 30,
		&timeline.Keypoint{Color: 0x0000ff, End: 1, Duration: 1, Pixels: pixelset.Of(8, 2)},
		&timeline.Keypoint{Color: 0xff00ff, End: 9, Duration: 8, Pixels: pixelset.Of(8, 2)},
	)
	require.Equal(t, uint32(0x0000ff), pixel(c.Payload, 1, 0, 2))
	require.Equal(t, uint32(0x2000ff), pixel(c.Payload, 1, 1, 2))
	require.Equal(t, uint32(0x4000ff), pixel(c.Payload, 1, 2, 2))
	require.Equal(t, uint32(0xff00ff), pixel(c.Payload, 1, 8, 2))
	require.Equal(t, uint32(0xff00ff), pixel(c.Payload, 1, 29, 2))
}

func TestKeypointsEndingTogetherAreAllConsumed(t *testing.T) {
	l := identity(1)
	c := compile(t, l, 10,
		&timeline.Keypoint{Color: 0x00ff00, End: 3, Duration: 1, Pixels: pixelset.Of(8, 0)},
		&timeline.Keypoint{Color: 0x0000ff, End: 3, Duration: 1, Pixels: pixelset.Of(8, 0)},
		&timeline.Keypoint{Color: 0xffffff, End: 3, Duration: 1, Pixels: pixelset.Of(8, 1)},
	)
	require.Equal(t, uint32(0x0000ff), pixel(c.Payload, 1, 5, 0))
	require.Equal(t, uint32(0xffffff), pixel(c.Payload, 1, 5, 1))
}

func TestRampBeginningBeforeOrigin(t *testing.T) {
	l := identity(1)
	c := compile(t, l, 4, &timeline.Keypoint{
		Color: 0x000064, End: 2, Duration: 4, Pixels: pixelset.Of(8, 0),
	})
	require.Equal(t, uint32(0x00004b), pixel(c.Payload, 1, 0, 0))
	require.Equal(t, uint32(0x000064), pixel(c.Payload, 1, 1, 0))
}

func TestSharedMaskSlots(t *testing.T) {
	l := identity(1)
	l.Slots[7] = pixelset.Of(8, 3, 4)
	l.Slots[6] = pixelset.New(8)
	c := compile(t, l, 3, &timeline.Keypoint{
		Color: 0x123456, End: 1, Duration: 1, Pixels: pixelset.Of(8, 4, 6),
	})
	require.Equal(t, uint32(0x123456), pixel(c.Payload, 1, 2, 7))
	require.Zero(t, pixel(c.Payload, 1, 2, 6))
	require.Equal(t, uint32(0x123456), pixel(c.Payload, 1, 2, 4))
}

func TestLayoutValidation(t *testing.T) {
	_, err := Compile(timeline.New(), Layout{Lanes: 0}, 1)
	require.ErrorIs(t, err, wire.ErrGeometryMismatch)

	l := identity(2)
	l.Slots = l.Slots[:15]
	_, err = Compile(timeline.New(), l, 1)
	require.ErrorIs(t, err, wire.ErrGeometryMismatch)
}

func TestZeroFrames(t *testing.T) {
	c := compile(t, identity(1), 0)
	require.Empty(t, c.Payload)
	require.Equal(t, uint32(0), c.Frames())
}
