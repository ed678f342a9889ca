// Package checksum computes the CRC-32 used by sign program files and
// transfers.
//
// The variant is MSB-first with polynomial 0x04C11DB7, a zero initial value
// and no final XOR or reflection. hash/crc32 only implements the reflected
// form, so the table is generated here.
package checksum
