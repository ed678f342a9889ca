package wire

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ledsign/internal/checksum"
)

// Compiled is an immutable program ready for upload or storage.
type Compiled struct {
	Header  Header
	Payload []byte
}

// NewCompiled wraps a rendered payload, computing its control word and CRC.
func NewCompiled(lanes int, payload []byte) (*Compiled, error) {
	if lanes <= 0 || lanes > MaxLanes {
		return nil, fmt.Errorf("%w: lane count %d out of range", ErrMalformedProgram, lanes)
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrMalformedProgram, len(payload), MaxPayload)
	}
	if len(payload)%FrameSize(lanes) != 0 {
		return nil, fmt.Errorf("%w: payload of %d bytes is not a whole number of frames", ErrMalformedProgram, len(payload))
	}
	return &Compiled{
		Header: Header{
			Control: NewControl(lanes, len(payload)),
			CRC:     checksum.Checksum(payload),
		},
		Payload: payload,
	}, nil
}

// Lanes returns the lane count of the program.
func (c *Compiled) Lanes() int {
	return c.Header.Lanes()
}

// Frames returns the program length in frames.
func (c *Compiled) Frames() uint32 {
	return c.Header.Frames()
}

func (c *Compiled) String() string {
	return fmt.Sprintf("compiled program size=%d B lanes=%d frames=%d crc=%#08x",
		len(c.Payload), c.Lanes(), c.Frames(), c.Header.CRC)
}

// WriteTo writes the header and payload in file order.
func (c *Compiled) WriteTo(w io.Writer) (int64, error) {
	head, _ := c.Header.AppendBinary(make([]byte, 0, HeaderSize))
	n, err := w.Write(head)
	total := int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(c.Payload)
	return total + int64(n), err
}

// Save writes the program to path, replacing any existing file atomically.
func (c *Compiled) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create program file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := c.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write program file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write program file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace program file: %w", err)
	}
	return nil
}

// Parse validates a complete program image.
func Parse(data []byte) (*Compiled, error) {
	if len(data) < HeaderSize || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: file size %d is not a multiple of 4 of at least %d bytes",
			ErrMalformedProgram, len(data), HeaderSize)
	}
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	payload := data[HeaderSize:]
	if len(payload) != header.PayloadSize() {
		return nil, fmt.Errorf("%w: payload is %d bytes, header declares %d",
			ErrMalformedProgram, len(payload), header.PayloadSize())
	}
	if sum := checksum.Checksum(payload); sum != header.CRC {
		return nil, fmt.Errorf("%w: %w: computed %#08x, header declares %#08x",
			ErrMalformedProgram, ErrIntegrityMismatch, sum, header.CRC)
	}
	return &Compiled{Header: header, Payload: bytes.Clone(payload)}, nil
}

// Load reads and validates a program file.
func Load(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program file: %w", err)
	}
	prog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}
