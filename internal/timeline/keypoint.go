package timeline

import (
	"fmt"

	"ledsign/internal/pixelset"
)

// FrameRate is the fixed playback rate of every sign program.
const FrameRate = 60

// UnknownSource labels keypoints that carry no provenance.
const UnknownSource = "<unknown>"

// Keypoint is a timed color target. The pixels in Pixels ramp linearly from
// whatever color they hold at frame End-Duration to Color, reaching it at
// frame End, and hold it until a later keypoint takes over.
type Keypoint struct {
	Color    uint32
	End      uint32
	Duration uint32
	Pixels   pixelset.Set
	// Source is a free-form diagnostic tag, typically file:line of the
	// authoring call.
	Source string

	key uint64
}

// Key returns the ordering key assigned on insertion. Keys are unique within a
// timeline and order keypoints by End and then by insertion order.
func (k *Keypoint) Key() uint64 {
	return k.key
}

// Start returns the first frame of the ramp. It is negative when the ramp
// begins before the timeline origin.
func (k *Keypoint) Start() int64 {
	return int64(k.End) - int64(k.Duration)
}

// Label returns Source or a placeholder when it is unset.
func (k *Keypoint) Label() string {
	if k.Source == "" {
		return UnknownSource
	}
	return k.Source
}

func (k *Keypoint) String() string {
	return fmt.Sprintf("keypoint color=#%06x duration=%.3fs end=%.3fs pixels=%s",
		k.Color&0xffffff,
		Seconds(int64(k.Duration)),
		Seconds(int64(k.End)),
		k.Pixels)
}

// Seconds converts a frame count to seconds.
func Seconds(frames int64) float64 {
	return float64(frames) / FrameRate
}
