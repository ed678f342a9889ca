// Package wire defines the compiled program format shared by sign firmware,
// program files and transfers.
//
// A program is an 8-byte header followed by a payload of frames. The header
// holds a control word and the CRC-32 of the payload, both little-endian. The
// low byte of the control word is three times the lane count and the
// remaining bits are the payload length in 32-bit words. Each frame is
// 24·lanes bytes: lanes groups for blocks 0-3 followed by lanes groups for
// blocks 4-7, where slot s lives in lane s mod lanes and block s / lanes.
package wire
