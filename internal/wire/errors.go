package wire

import "errors"

var (
	// ErrMalformedProgram marks a header, length or lane count that cannot
	// describe a valid program.
	ErrMalformedProgram = errors.New("malformed program")
	// ErrIntegrityMismatch marks a payload whose CRC does not match its header.
	ErrIntegrityMismatch = errors.New("program checksum mismatch")
	// ErrGeometryMismatch marks a program built for a different pixel layout
	// than the target hardware.
	ErrGeometryMismatch = errors.New("mismatched program hardware")
)
