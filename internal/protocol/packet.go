package protocol

import (
	"encoding/binary"
	"fmt"
)

// Version is the protocol version announced by the host.
const Version = 0x0005

// MaxPacketSize is the largest packet either side sends.
const MaxPacketSize = 64

// Kind identifies a packet. Every packet starts with its kind and its total
// size in bytes.
type Kind uint8

const (
	KindNone                 Kind = 0x00
	KindHostInfo             Kind = 0x90
	KindDeviceInfo           Kind = 0x9f
	KindAck                  Kind = 0xb0
	KindDriverStatusRequest  Kind = 0x7a
	KindDriverStatusResponse Kind = 0x80
	KindProgramChunkRequest  Kind = 0xd5
	KindProgramChunkResponse Kind = 0xf8
	KindProgramSetup         Kind = 0xc8
	KindProgramUploadStatus  Kind = 0xa5
	KindHardwareDataRequest  Kind = 0x2f
	KindHardwareDataResponse Kind = 0x53
)

const headerSize = 2

var kindInfo = map[Kind]struct {
	name string
	size int
}{
	KindNone:                 {"none", headerSize},
	KindHostInfo:             {"host_info", headerSize + 2},
	KindDeviceInfo:           {"device_info", headerSize + 39},
	KindAck:                  {"ack", headerSize + 1},
	KindDriverStatusRequest:  {"driver_status_request", headerSize},
	KindDriverStatusResponse: {"driver_status_response", headerSize + 12},
	KindProgramChunkRequest:  {"program_chunk_request", headerSize + 8},
	KindProgramChunkResponse: {"program_chunk_response", headerSize + 4},
	KindProgramSetup:         {"program_setup", headerSize + 8},
	KindProgramUploadStatus:  {"program_upload_status", headerSize},
	KindHardwareDataRequest:  {"hardware_data_request", headerSize + 1},
	KindHardwareDataResponse: {"hardware_data_response", headerSize + 20},
}

// Size returns the encoded size of a packet of kind k, or 0 for an unknown
// kind.
func (k Kind) Size() int {
	return kindInfo[k].size
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%#02x)", uint8(k))
}

// HostInfo opens the handshake.
type HostInfo struct {
	Version uint16
}

// DeviceInfo is the sign's handshake answer.
type DeviceInfo struct {
	Version    uint16
	StorageKiB uint16
	Config     [8]byte
	Control    uint32
	CRC        uint32
	Brightness uint8
	Access     uint8
	PSUCurrent uint8
	Flags      uint8
	Firmware   [7]byte
	Serial     uint64
}

// DriverStatus is the LED driver telemetry.
type DriverStatus struct {
	Temperature      uint16
	Load             uint16
	ProgramOffset    uint32
	CurrentMicroamps uint32
}

// ChunkRequest names a byte range of the program. During an upload the sign
// sends it to ask for data; during a download the host sends it.
type ChunkRequest struct {
	Offset uint32
	Size   uint32
}

// ChunkResponse is the number of bytes the sign will send.
type ChunkResponse struct {
	Size uint32
}

// ProgramSetup announces an upload.
type ProgramSetup struct {
	Control uint32
	CRC     uint32
}

// HardwareDataRequest asks for the geometry table of a key.
type HardwareDataRequest struct {
	Key uint8
}

// HardwareData describes a geometry table that follows as bulk data.
type HardwareData struct {
	Length uint16
	Width  uint16
	Name   [16]byte
}

// Ack is a bare acknowledgement.
type Ack struct {
	Status uint8
}

// Marshal encodes a packet. body is nil for kinds without fields.
func Marshal(kind Kind, body any) ([]byte, error) {
	size := kind.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown packet kind %s", ErrProtocol, kind)
	}
	out := make([]byte, headerSize, size)
	out[0] = byte(kind)
	out[1] = byte(size)
	if body != nil {
		var err error
		if out, err = binary.Append(out, binary.LittleEndian, body); err != nil {
			return nil, fmt.Errorf("encode %s: %w", kind, err)
		}
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: %s body encodes to %d bytes, want %d", ErrProtocol, kind, len(out), size)
	}
	return out, nil
}

// Unmarshal checks that packet is a well-formed packet of kind and decodes
// its fields into body, which may be nil.
func Unmarshal(packet []byte, kind Kind, body any) error {
	if err := Check(packet, kind); err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	if _, err := binary.Decode(packet[headerSize:], binary.LittleEndian, body); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProtocol, kind, err)
	}
	return nil
}

// Check validates the header of packet against kind.
func Check(packet []byte, kind Kind) error {
	if len(packet) < headerSize {
		return fmt.Errorf("%w: short packet of %d bytes", ErrProtocol, len(packet))
	}
	got := Kind(packet[0])
	if got != kind || int(packet[1]) != len(packet) || len(packet) != kind.Size() {
		return fmt.Errorf("%w: got %s of %d bytes (declared %d), want %s of %d bytes",
			ErrProtocol, got, len(packet), packet[1], kind, kind.Size())
	}
	return nil
}
