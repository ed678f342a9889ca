package transpose

import "encoding/binary"

// GroupSize is the number of bytes one encoded group occupies.
const GroupSize = 12

// PixelsPerGroup is the number of pixels packed into one group.
const PixelsPerGroup = 4

type step struct {
	mask  uint32
	shift uint
}

var (
	encodeSteps = [...]step{
		{0x00aa00aa, 7},
		{0x0000cccc, 14},
		{0x00f000f0, 4},
		{0x0000ff00, 8},
	}
	decodeSteps = [...]step{
		{0x0a0a0a0a, 3},
		{0x00cc00cc, 6},
		{0x0000f0f0, 12},
		{0x0000ff00, 8},
	}
)

func permute(a uint32, s step) uint32 {
	t := (a>>s.shift ^ a) & s.mask
	return a ^ t ^ t<<s.shift
}

// EncodeWord transposes four packed channel samples into plane order.
func EncodeWord(w uint32) uint32 {
	for _, s := range encodeSteps {
		w = permute(w, s)
	}
	return w
}

// DecodeWord is the inverse of EncodeWord.
func DecodeWord(w uint32) uint32 {
	for _, s := range decodeSteps {
		w = permute(w, s)
	}
	return w
}

// EncodeGroup packs four 0xRRGGBB colors into dst, which must hold at least
// GroupSize bytes. The red, green and blue plane words are stored
// little-endian in that order.
func EncodeGroup(dst []byte, colors [PixelsPerGroup]uint32) {
	_ = dst[GroupSize-1]
	var r, g, b uint32
	for k, c := range colors {
		shift := uint(k) * 8
		r |= (c >> 16 & 0xff) << shift
		g |= (c >> 8 & 0xff) << shift
		b |= (c & 0xff) << shift
	}
	binary.LittleEndian.PutUint32(dst[0:], EncodeWord(r))
	binary.LittleEndian.PutUint32(dst[4:], EncodeWord(g))
	binary.LittleEndian.PutUint32(dst[8:], EncodeWord(b))
}

// DecodeGroup unpacks the four colors stored in src.
func DecodeGroup(src []byte) [PixelsPerGroup]uint32 {
	_ = src[GroupSize-1]
	r := DecodeWord(binary.LittleEndian.Uint32(src[0:]))
	g := DecodeWord(binary.LittleEndian.Uint32(src[4:]))
	b := DecodeWord(binary.LittleEndian.Uint32(src[8:]))
	var out [PixelsPerGroup]uint32
	for k := range out {
		shift := uint(k) * 8
		out[k] = (r>>shift&0xff)<<16 | (g>>shift&0xff)<<8 | b>>shift&0xff
	}
	return out
}
