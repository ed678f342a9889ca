package protocol_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ledsign/internal/hardware"
	"ledsign/internal/protocol"
	"ledsign/internal/testsupport"
)

func TestKindSizes(t *testing.T) {
	sizes := map[protocol.Kind]int{
		protocol.KindNone:                 2,
		protocol.KindHostInfo:             4,
		protocol.KindDeviceInfo:           41,
		protocol.KindAck:                  3,
		protocol.KindDriverStatusRequest:  2,
		protocol.KindDriverStatusResponse: 14,
		protocol.KindProgramChunkRequest:  10,
		protocol.KindProgramChunkResponse: 6,
		protocol.KindProgramSetup:         10,
		protocol.KindProgramUploadStatus:  2,
		protocol.KindHardwareDataRequest:  3,
		protocol.KindHardwareDataResponse: 22,
	}
	for kind, size := range sizes {
		require.Equal(t, size, kind.Size(), kind.String())
	}
	require.Zero(t, protocol.Kind(0x42).Size())
	require.Equal(t, "kind(0x42)", protocol.Kind(0x42).String())
}

func TestMarshalLayout(t *testing.T) {
	packet, err := protocol.Marshal(protocol.KindProgramChunkRequest, &protocol.ChunkRequest{Offset: 0x01020304, Size: 0x0a0b})
	require.NoError(t, err)
	require.Equal(t, []byte{0xd5, 10, 4, 3, 2, 1, 0x0b, 0x0a, 0, 0}, packet)

	packet, err = protocol.Marshal(protocol.KindProgramUploadStatus, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xa5, 2}, packet)

	_, err = protocol.Marshal(protocol.KindProgramSetup, &protocol.ChunkResponse{})
	require.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestDeviceInfoRoundTrip(t *testing.T) {
	info := protocol.DeviceInfo{
		Version:    protocol.Version,
		StorageKiB: 64,
		Config:     [8]byte{'A', 0, 'B'},
		Control:    0x1203,
		CRC:        0xdeadbeef,
		Brightness: 5,
		Access:     2,
		PSUCurrent: 0x7f,
		Flags:      1,
		Firmware:   [7]byte{1, 2, 3, 4, 5, 6, 7},
		Serial:     42,
	}
	packet, err := protocol.Marshal(protocol.KindDeviceInfo, &info)
	require.NoError(t, err)
	require.Len(t, packet, 41)

	var got protocol.DeviceInfo
	require.NoError(t, protocol.Unmarshal(packet, protocol.KindDeviceInfo, &got))
	require.Equal(t, info, got)
}

func TestUnmarshalRejectsMismatch(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
	}{
		{"short", []byte{0x80}},
		{"wrong kind", []byte{0xf8, 6, 0, 0, 0, 0}},
		{"declared size", []byte{0x80, 13, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"truncated", []byte{0x80, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := protocol.Unmarshal(tt.packet, protocol.KindDriverStatusResponse, &protocol.DriverStatus{})
			require.ErrorIs(t, err, protocol.ErrProtocol)
		})
	}
}

func TestHandshake(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	client := protocol.NewClient(sign.Transport())
	defer client.Close()

	info, err := client.Handshake(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(protocol.Version), info.Version)
	require.Equal(t, [8]byte{'A'}, info.Config)
	require.Equal(t, uint64(0x0123456789abcdef), info.Serial)
}

func TestHandshakeRejected(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	sign.RejectVersion = true
	client := protocol.NewClient(sign.Transport())
	defer client.Close()

	_, err := client.Handshake(context.Background())
	require.ErrorIs(t, err, protocol.ErrUnsupportedProtocol)
	require.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestDriverStatus(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	sign.Status = protocol.DriverStatus{Temperature: 100, Load: 320, ProgramOffset: 7, CurrentMicroamps: 1500000}
	client := protocol.NewClient(sign.Transport())
	defer client.Close()

	status, err := client.DriverStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, sign.Status, status)
}

func TestFetchGeometry(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A', 'B'})
	client := protocol.NewClient(sign.Transport())
	defer client.Close()

	g, err := client.FetchGeometry(context.Background(), 'B')
	require.NoError(t, err)
	require.Equal(t, testsupport.Geometries()['B'], g)

	hw, err := hardware.New(context.Background(), hardware.Config{'A', 'B'}, client)
	require.NoError(t, err)
	require.Equal(t, 8, hw.PixelCount())
	require.Equal(t, 5, hw.LedDepth())
}

func TestRequestChunkBusy(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	sign.Program = make([]byte, 96)
	sign.Busy = 1
	client := protocol.NewClient(sign.Transport())
	defer client.Close()

	ctx := context.Background()
	n, err := client.RequestChunk(ctx, 0, 48)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = client.RequestChunk(ctx, 0, 48)
	require.NoError(t, err)
	require.Equal(t, uint32(48), n)

	data, err := client.BulkRead(ctx, int(n))
	require.NoError(t, err)
	require.Len(t, data, 48)

	_, err = client.BulkRead(ctx, 12)
	require.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestClosedTransport(t *testing.T) {
	sign := testsupport.NewSign(hardware.Config{'A'})
	client := protocol.NewClient(sign.Transport())
	require.NoError(t, client.Close())

	_, err := client.DriverStatus(context.Background())
	require.ErrorIs(t, err, protocol.ErrDeviceDisconnected)
	require.Equal(t, 1, sign.Closes())
}
