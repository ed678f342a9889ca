package checksum

import "hash"

// Size of a CRC-32 checksum in bytes.
const Size = 4

// Polynomial is the generator polynomial in normal (MSB-first) notation.
const Polynomial = 0x04c11db7

var table = makeTable(Polynomial)

func makeTable(poly uint32) *[256]uint32 {
	t := new([256]uint32)
	for i := range t {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// TableEntry exposes one entry of the lookup table.
func TableEntry(i uint8) uint32 {
	return table[i]
}

// Update returns the result of adding the bytes in p to crc.
func Update(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = table[byte(crc>>24)^b] ^ crc<<8
	}
	return crc
}

// Checksum returns the CRC-32 of data.
func Checksum(data []byte) uint32 {
	return Update(0, data)
}

type digest struct {
	crc uint32
}

// New creates a streaming hash.Hash32. Sum appends the big-endian checksum,
// following the hash/crc32 convention; callers that store it on the wire use
// Sum32.
func New() hash.Hash32 {
	return &digest{}
}

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return 1 }

func (d *digest) Reset() { d.crc = 0 }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, p)
	return len(p), nil
}

func (d *digest) Sum32() uint32 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	s := d.crc
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}
