package compiler

import (
	"fmt"
	"math"

	"ledsign/internal/pixelset"
	"ledsign/internal/timeline"
	"ledsign/internal/transpose"
	"ledsign/internal/wire"
)

// Layout describes how frame slots map onto sign pixels.
type Layout struct {
	Lanes int
	// Slots holds Lanes·wire.SlotsPerLane masks. Empty masks render black.
	Slots []pixelset.Set
}

// Validate checks that the slot table matches the lane count.
func (l Layout) Validate() error {
	if l.Lanes <= 0 || l.Lanes > wire.MaxLanes {
		return fmt.Errorf("%w: lane count %d out of range", wire.ErrGeometryMismatch, l.Lanes)
	}
	if len(l.Slots) != l.Lanes*wire.SlotsPerLane {
		return fmt.Errorf("%w: %d slots for %d lanes", wire.ErrGeometryMismatch, len(l.Slots), l.Lanes)
	}
	return nil
}

type cursor struct {
	mask pixelset.Set
	next *timeline.Keypoint
	prev uint32
	rgb  uint32
}

// Compile renders frames frames of tl through layout.
func Compile(tl *timeline.Timeline, layout Layout, frames uint32) (*wire.Compiled, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	frameSize := wire.FrameSize(layout.Lanes)
	if uint64(frames)*uint64(frameSize) > wire.MaxPayload {
		return nil, fmt.Errorf("%w: %d frames exceed the program size limit", wire.ErrMalformedProgram, frames)
	}

	cursors := make([]cursor, len(layout.Slots))
	for i, mask := range layout.Slots {
		cursors[i].mask = mask
		if !mask.IsEmpty() {
			cursors[i].next = tl.Successor(0, mask)
		}
	}

	payload := make([]byte, int(frames)*frameSize)
	groups := 2 * layout.Lanes
	for f := range frames {
		for i := range cursors {
			cursors[i].advance(tl, f)
		}
		frame := payload[int(f)*frameSize:]
		for g := range groups {
			var colors [transpose.PixelsPerGroup]uint32
			for k, slot := range wire.GroupSlots(layout.Lanes, g) {
				colors[k] = cursors[slot].rgb
			}
			transpose.EncodeGroup(frame[g*transpose.GroupSize:], colors)
		}
	}
	return wire.NewCompiled(layout.Lanes, payload)
}

func (c *cursor) advance(tl *timeline.Timeline, frame uint32) {
	for c.next != nil && c.next.End <= frame {
		c.prev = c.next.Color & 0xffffff
		c.rgb = c.prev
		c.next = tl.Successor(c.next.Key()+1, c.mask)
	}
	if c.next == nil {
		return
	}
	kp := c.next
	d := int64(max(kp.Duration, 1))
	c.rgb = Interpolate(c.prev, kp.Color, int64(frame)-int64(kp.End)+1+d, d)
}

// Interpolate returns the color shown step frames into a ramp of duration
// frames from prev to target. Step duration lands on target; steps at or
// before zero show prev.
func Interpolate(prev, target uint32, step, duration int64) uint32 {
	t := max(float64(step-duration)/float64(duration)+1, 0)
	return lerp(prev>>16&0xff, target>>16&0xff, t)<<16 |
		lerp(prev>>8&0xff, target>>8&0xff, t)<<8 |
		lerp(prev&0xff, target&0xff, t)
}

// lerp rounds half to even. The explicit conversion keeps the multiply and
// add from being fused so results match across architectures.
func lerp(a, b uint32, t float64) uint32 {
	delta := float64(float64(int32(b)-int32(a)) * t)
	return uint32(math.RoundToEven(float64(a) + delta))
}
