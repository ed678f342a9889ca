package protocol

import (
	"bytes"
	"context"
	"fmt"

	"ledsign/internal/hardware"
)

// DoneOffset is the chunk offset a sign sends once an upload is complete.
const DoneOffset = 0xffffffff

// Client issues typed requests over a Transport.
type Client struct {
	tr Transport
}

// NewClient wraps tr.
func NewClient(tr Transport) *Client {
	return &Client{tr: tr}
}

// Transport returns the underlying transport.
func (c *Client) Transport() Transport {
	return c.tr
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.tr.Close()
}

func (c *Client) call(ctx context.Context, reqKind Kind, req any, respKind Kind, resp any) error {
	packet, err := Marshal(reqKind, req)
	if err != nil {
		return err
	}
	answer, err := c.tr.Exchange(ctx, packet)
	if err != nil {
		return fmt.Errorf("%s: %w", reqKind, err)
	}
	return Unmarshal(answer, respKind, resp)
}

// Handshake announces Version and returns the sign's description.
func (c *Client) Handshake(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo
	packet, err := Marshal(KindHostInfo, &HostInfo{Version: Version})
	if err != nil {
		return info, err
	}
	answer, err := c.tr.Exchange(ctx, packet)
	if err != nil {
		return info, fmt.Errorf("%s: %w", KindHostInfo, err)
	}
	if err := Unmarshal(answer, KindDeviceInfo, &info); err != nil {
		return info, fmt.Errorf("%w: %w", ErrUnsupportedProtocol, err)
	}
	return info, nil
}

// DriverStatus reads the LED driver telemetry.
func (c *Client) DriverStatus(ctx context.Context) (DriverStatus, error) {
	var status DriverStatus
	err := c.call(ctx, KindDriverStatusRequest, nil, KindDriverStatusResponse, &status)
	return status, err
}

// HardwareData describes the geometry table of key.
func (c *Client) HardwareData(ctx context.Context, key byte) (HardwareData, error) {
	var data HardwareData
	err := c.call(ctx, KindHardwareDataRequest, &HardwareDataRequest{Key: key}, KindHardwareDataResponse, &data)
	return data, err
}

// FetchGeometry reads the full geometry of key. It implements
// hardware.Fetcher.
func (c *Client) FetchGeometry(ctx context.Context, key byte) (hardware.Geometry, error) {
	data, err := c.HardwareData(ctx, key)
	if err != nil {
		return hardware.Geometry{}, err
	}
	raw, err := c.BulkRead(ctx, int(data.Length))
	if err != nil {
		return hardware.Geometry{}, err
	}
	name := string(bytes.TrimRight(data.Name[:], "\x00"))
	return hardware.ParseGeometry(data.Width, name, raw)
}

// ProgramSetup starts an upload and returns the first chunk the sign wants.
func (c *Client) ProgramSetup(ctx context.Context, control, crc uint32) (ChunkRequest, error) {
	var want ChunkRequest
	err := c.call(ctx, KindProgramSetup, &ProgramSetup{Control: control, CRC: crc}, KindProgramChunkRequest, &want)
	return want, err
}

// UploadStatus returns the next chunk the sign wants.
func (c *Client) UploadStatus(ctx context.Context) (ChunkRequest, error) {
	var want ChunkRequest
	err := c.call(ctx, KindProgramUploadStatus, nil, KindProgramChunkRequest, &want)
	return want, err
}

// RequestChunk asks for size bytes at offset and returns how many the sign
// will send. Zero means the sign is busy.
func (c *Client) RequestChunk(ctx context.Context, offset, size uint32) (uint32, error) {
	var resp ChunkResponse
	err := c.call(ctx, KindProgramChunkRequest, &ChunkRequest{Offset: offset, Size: size}, KindProgramChunkResponse, &resp)
	return resp.Size, err
}

// BulkRead reads exactly n bytes.
func (c *Client) BulkRead(ctx context.Context, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	data, err := c.tr.BulkRead(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("bulk read: %w", err)
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: bulk read returned %d of %d bytes", ErrProtocol, len(data), n)
	}
	return data, nil
}

// BulkWrite writes p.
func (c *Client) BulkWrite(ctx context.Context, p []byte) error {
	if err := c.tr.BulkWrite(ctx, p); err != nil {
		return fmt.Errorf("bulk write: %w", err)
	}
	return nil
}
