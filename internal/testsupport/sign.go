package testsupport

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"ledsign/internal/checksum"
	"ledsign/internal/hardware"
	"ledsign/internal/protocol"
	"ledsign/internal/wire"
)

// DefaultChunk is the largest chunk a simulated sign moves at once.
const DefaultChunk = 4096

// Geometries returns two small letter boards: 'A' with five pixels and 'B'
// with three.
func Geometries() map[byte]hardware.Geometry {
	return map[byte]hardware.Geometry{
		'A': {Width: 3 * 768, Name: "A", Points: []uint32{
			0, 768, 2 * 768, 768 << 16, 768 | 768<<16,
		}},
		'B': {Width: 2 * 768, Name: "B", Points: []uint32{
			0, 768, 768 << 17,
		}},
	}
}

// Sign simulates the firmware side of the protocol. Fields may be adjusted
// before the sign is opened; afterwards use the accessor methods.
type Sign struct {
	mu sync.Mutex

	Info       protocol.DeviceInfo
	Status     protocol.DriverStatus
	Geometries map[byte]hardware.Geometry
	Program    []byte
	// Busy is the number of zero-size answers sent before every chunk.
	Busy int
	// Chunk caps the bytes moved per chunk. Zero means DefaultChunk.
	Chunk uint32
	// CorruptDownload flips a bit in the first chunk sent to the host.
	CorruptDownload bool
	// RejectVersion makes the handshake fail as if the host were too old.
	RejectVersion bool

	open       bool
	busyLeft   int
	waited     int
	bulk       []byte
	upload     []byte
	uploading  bool
	offset     uint32
	setup      protocol.ProgramSetup
	kinds      []protocol.Kind
	statusHits int
	closes     int
}

// NewSign returns a read-write sign with the given letter configuration and
// an empty program.
func NewSign(config hardware.Config) *Sign {
	s := &Sign{Geometries: Geometries()}
	s.Info.Version = protocol.Version
	s.Info.StorageKiB = 4
	s.Info.Config = config
	s.Info.Access = 2
	s.Info.Brightness = 7
	s.Info.PSUCurrent = 20
	s.Info.Flags = 1
	s.Info.Firmware = [7]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x02}
	s.Info.Serial = 0x0123456789abcdef
	return s
}

// Store places a compiled program on the sign as if it had been uploaded.
func (s *Sign) Store(c *wire.Compiled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Program = bytes.Clone(c.Payload)
	s.Info.Control = c.Header.Control
	s.Info.CRC = c.Header.CRC
}

// Stored returns the program header and payload currently on the sign.
func (s *Sign) Stored() (wire.Header, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.Header{Control: s.Info.Control, CRC: s.Info.CRC}, bytes.Clone(s.Program)
}

// Kinds returns every request kind received so far.
func (s *Sign) Kinds() []protocol.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.kinds)
}

// StatusRequests counts driver status requests.
func (s *Sign) StatusRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusHits
}

// Closes counts how often a transport to the sign was closed.
func (s *Sign) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Transport opens the sign directly, bypassing any Backend.
func (s *Sign) Transport() protocol.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return &signTransport{sign: s}
}

func (s *Sign) chunkLimit() uint32 {
	if s.Chunk == 0 {
		return DefaultChunk
	}
	return s.Chunk
}

func (s *Sign) exchange(packet []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(packet) < 2 {
		return protocol.Marshal(protocol.KindNone, nil)
	}
	kind := protocol.Kind(packet[0])
	s.kinds = append(s.kinds, kind)

	switch kind {
	case protocol.KindHostInfo:
		var req protocol.HostInfo
		if err := protocol.Unmarshal(packet, kind, &req); err != nil || req.Version != s.Info.Version || s.RejectVersion {
			return protocol.Marshal(protocol.KindNone, nil)
		}
		return protocol.Marshal(protocol.KindDeviceInfo, &s.Info)

	case protocol.KindDriverStatusRequest:
		s.statusHits++
		return protocol.Marshal(protocol.KindDriverStatusResponse, &s.Status)

	case protocol.KindHardwareDataRequest:
		var req protocol.HardwareDataRequest
		if err := protocol.Unmarshal(packet, kind, &req); err != nil {
			return nil, err
		}
		g := s.Geometries[req.Key]
		resp := protocol.HardwareData{Width: g.Width}
		s.bulk = g.Raw()
		resp.Length = uint16(len(s.bulk))
		copy(resp.Name[:], g.Name)
		return protocol.Marshal(protocol.KindHardwareDataResponse, &resp)

	case protocol.KindProgramSetup:
		if err := protocol.Unmarshal(packet, kind, &s.setup); err != nil {
			return nil, err
		}
		s.uploading = true
		s.upload = make([]byte, wire.Header{Control: s.setup.Control}.PayloadSize())
		s.offset = 0
		s.busyLeft = s.Busy
		return s.nextUploadChunk()

	case protocol.KindProgramUploadStatus:
		if !s.uploading {
			return protocol.Marshal(protocol.KindNone, nil)
		}
		return s.nextUploadChunk()

	case protocol.KindProgramChunkRequest:
		var req protocol.ChunkRequest
		if err := protocol.Unmarshal(packet, kind, &req); err != nil {
			return nil, err
		}
		return s.downloadChunk(req)
	}
	return protocol.Marshal(protocol.KindNone, nil)
}

func (s *Sign) nextUploadChunk() ([]byte, error) {
	if s.busyLeft > 0 {
		s.busyLeft--
		return protocol.Marshal(protocol.KindProgramChunkRequest, &protocol.ChunkRequest{Offset: s.offset})
	}
	if int(s.offset) >= len(s.upload) {
		s.uploading = false
		if checksum.Checksum(s.upload) == s.setup.CRC {
			s.Program = s.upload
			s.Info.Control = s.setup.Control
			s.Info.CRC = s.setup.CRC
		}
		return protocol.Marshal(protocol.KindProgramChunkRequest, &protocol.ChunkRequest{Offset: protocol.DoneOffset})
	}
	s.busyLeft = s.Busy
	size := min(s.chunkLimit(), uint32(len(s.upload))-s.offset)
	return protocol.Marshal(protocol.KindProgramChunkRequest, &protocol.ChunkRequest{Offset: s.offset, Size: size})
}

func (s *Sign) downloadChunk(req protocol.ChunkRequest) ([]byte, error) {
	if s.waited < s.Busy {
		s.waited++
		return protocol.Marshal(protocol.KindProgramChunkResponse, &protocol.ChunkResponse{})
	}
	s.waited = 0
	var n uint32
	if int(req.Offset) < len(s.Program) {
		n = min(req.Size, s.chunkLimit(), uint32(len(s.Program))-req.Offset)
	}
	s.bulk = nil
	if n > 0 {
		s.bulk = bytes.Clone(s.Program[req.Offset : req.Offset+n])
	}
	if s.CorruptDownload && req.Offset == 0 && n > 0 {
		s.bulk[0] ^= 0x01
	}
	return protocol.Marshal(protocol.KindProgramChunkResponse, &protocol.ChunkResponse{Size: n})
}

func (s *Sign) bulkRead(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n != len(s.bulk) {
		return nil, fmt.Errorf("%w: bulk read of %d bytes, %d pending", protocol.ErrProtocol, n, len(s.bulk))
	}
	out := s.bulk
	s.bulk = nil
	return out, nil
}

func (s *Sign) bulkWrite(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.uploading || int(s.offset)+len(p) > len(s.upload) {
		return fmt.Errorf("%w: unexpected bulk write of %d bytes", protocol.ErrProtocol, len(p))
	}
	copy(s.upload[s.offset:], p)
	s.offset += uint32(len(p))
	return nil
}

type signTransport struct {
	sign   *Sign
	closed bool
}

func (t *signTransport) Exchange(ctx context.Context, packet []byte) ([]byte, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return t.sign.exchange(packet)
}

func (t *signTransport) BulkRead(ctx context.Context, n int) ([]byte, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return t.sign.bulkRead(n)
}

func (t *signTransport) BulkWrite(ctx context.Context, p []byte) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	return t.sign.bulkWrite(p)
}

func (t *signTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.sign.mu.Lock()
	defer t.sign.mu.Unlock()
	t.sign.open = false
	t.sign.closes++
	return nil
}

func (t *signTransport) check(ctx context.Context) error {
	if t.closed {
		return protocol.ErrDeviceDisconnected
	}
	return ctx.Err()
}

// Backend serves simulated signs by path.
type Backend struct {
	Signs map[string]*Sign
}

// NewBackend returns a backend holding one sign at path.
func NewBackend(path string, sign *Sign) *Backend {
	return &Backend{Signs: map[string]*Sign{path: sign}}
}

// Enumerate lists the sign paths in order.
func (b *Backend) Enumerate(context.Context) ([]string, error) {
	paths := make([]string, 0, len(b.Signs))
	for p := range b.Signs {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths, nil
}

// Open claims the sign at path.
func (b *Backend) Open(_ context.Context, path string) (protocol.Transport, error) {
	s, ok := b.Signs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrDeviceNotFound, path)
	}
	s.mu.Lock()
	inUse := s.open
	s.mu.Unlock()
	if inUse {
		return nil, fmt.Errorf("%w: %s", protocol.ErrDeviceInUse, path)
	}
	return s.Transport(), nil
}
