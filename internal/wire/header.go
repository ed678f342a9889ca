package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"ledsign/internal/timeline"
	"ledsign/internal/transpose"
)

const (
	// HeaderSize is the encoded size of a Header.
	HeaderSize = 8
	// SlotsPerLane is the number of pixel slots one lane carries per frame.
	SlotsPerLane = 8
	// MaxLanes is the largest lane count the control word can express.
	MaxLanes = 0xff / 3
	// MaxPayload is the largest payload the control word can express.
	MaxPayload = (1<<24 - 1) * 4
)

// Header is the control word and checksum that precede a payload.
type Header struct {
	Control uint32
	CRC     uint32
}

// NewControl packs a lane count and payload length into a control word.
func NewControl(lanes, payloadSize int) uint32 {
	return uint32(3*lanes) | uint32(payloadSize/4)<<8
}

// Lanes returns the lane count encoded in the control word.
func (h Header) Lanes() int {
	return int(h.Control&0xff) / 3
}

// PayloadSize returns the payload length in bytes.
func (h Header) PayloadSize() int {
	return int(h.Control>>8) << 2
}

// Empty reports whether the header describes no payload at all.
func (h Header) Empty() bool {
	return h.Control>>8 == 0
}

// FrameSize returns the number of payload bytes per frame.
func (h Header) FrameSize() int {
	return FrameSize(h.Lanes())
}

// Frames returns the program length in frames.
func (h Header) Frames() uint32 {
	return (h.Control >> 9) / max(h.Control&0xff, 1)
}

// OffsetDivisor converts a playback offset reported by the sign, in payload
// words, into seconds.
func (h Header) OffsetDivisor() uint32 {
	return max((h.Control&0xff)<<1, 1) * timeline.FrameRate
}

// Duration is the playback length the sign reports for this program.
func (h Header) Duration() time.Duration {
	words := max(h.Control>>8, 1)
	return time.Duration(float64(words) / float64(h.OffsetDivisor()) * float64(time.Second))
}

// Validate checks the control word on its own.
func (h Header) Validate() error {
	lanes := h.Control & 0xff
	if lanes == 0 || lanes%3 != 0 {
		return fmt.Errorf("%w: control word %#08x has invalid lane field", ErrMalformedProgram, h.Control)
	}
	if size := h.PayloadSize(); size%h.FrameSize() != 0 {
		return fmt.Errorf("%w: payload of %d bytes is not a whole number of %d byte frames",
			ErrMalformedProgram, size, h.FrameSize())
	}
	return nil
}

// AppendBinary implements encoding.BinaryAppender.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, h.Control)
	return binary.LittleEndian.AppendUint32(b, h.CRC), nil
}

// ParseHeader decodes the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header truncated to %d bytes", ErrMalformedProgram, len(b))
	}
	return Header{
		Control: binary.LittleEndian.Uint32(b[0:]),
		CRC:     binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

func (h Header) String() string {
	return fmt.Sprintf("control=%#08x crc=%#08x lanes=%d frames=%d", h.Control, h.CRC, h.Lanes(), h.Frames())
}

// FrameSize returns the number of payload bytes per frame for a lane count.
func FrameSize(lanes int) int {
	return lanes * 2 * transpose.GroupSize
}

// GroupSlots returns the four pixel slots encoded by group g of a frame.
func GroupSlots(lanes, g int) [transpose.PixelsPerGroup]int {
	lane := g % lanes
	block := g / lanes * transpose.PixelsPerGroup
	var slots [transpose.PixelsPerGroup]int
	for k := range slots {
		slots[k] = lane + (block+k)*lanes
	}
	return slots
}
