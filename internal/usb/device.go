package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"ledsign/internal/protocol"
)

const (
	ioctlBulk             = 0xc0185502
	ioctlClaimInterface   = 0x8004550f
	ioctlReleaseInterface = 0x80045510
	ioctlControl          = 0xc0185500

	signInterface = 1

	endpointPacketOut = 0x04
	endpointPacketIn  = 0x84
	endpointBulkIn    = 0x85
	endpointBulkOut   = 0x05

	// DefaultTimeout bounds a single usbdevfs transfer.
	DefaultTimeout = time.Second
)

// usbdevfs_ctrltransfer
type controlTransfer struct {
	requestType uint8
	request     uint8
	value       uint16
	index       uint16
	length      uint16
	timeout     uint32
	data        unsafe.Pointer
}

// usbdevfs_bulktransfer
type bulkTransfer struct {
	endpoint uint32
	length   uint32
	timeout  uint32
	data     unsafe.Pointer
}

type device struct {
	mu     sync.Mutex
	path   string
	fd     int
	lock   *flock.Flock
	closed bool
}

func openDevice(path string) (*device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	d := &device{path: path, fd: fd}
	iface := uint32(signInterface)
	if err := d.ioctl(ioctlClaimInterface, unsafe.Pointer(&iface)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: claim interface on %s: %w", protocol.ErrDeviceInUse, path, err)
	}
	if err := d.reset(); err != nil {
		_ = d.release()
		return nil, err
	}
	return d, nil
}

func (d *device) ioctl(request uintptr, arg unsafe.Pointer) error {
	_, err := d.ioctlN(request, arg)
	return err
}

func (d *device) ioctlN(request uintptr, arg unsafe.Pointer) (int, error) {
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), request, uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// reset asks the firmware to drop any half finished exchange. A sign that
// does not answer "reset" has host access disabled.
func (d *device) reset() error {
	buf := make([]byte, protocol.MaxPacketSize)
	ctrl := controlTransfer{
		requestType: 0xc0,
		request:     0x52,
		value:       0x5453,
		length:      uint16(len(buf)),
		timeout:     uint32(DefaultTimeout / time.Millisecond),
		data:        unsafe.Pointer(&buf[0]),
	}
	n, err := d.ioctlN(ioctlControl, unsafe.Pointer(&ctrl))
	if err != nil || n != 5 || string(buf[:5]) != "reset" {
		return fmt.Errorf("%w: %s refused reset, host access disabled", protocol.ErrProtocol, d.path)
	}
	return nil
}

func timeoutFor(ctx context.Context) uint32 {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, max(time.Until(deadline), time.Millisecond))
	}
	return uint32(timeout / time.Millisecond)
}

func (d *device) bulk(ctx context.Context, endpoint uint32, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, protocol.ErrDeviceDisconnected
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	xfer := bulkTransfer{
		endpoint: endpoint,
		length:   uint32(len(p)),
		timeout:  timeoutFor(ctx),
		data:     unsafe.Pointer(&p[0]),
	}
	n, err := d.ioctlN(ioctlBulk, unsafe.Pointer(&xfer))
	if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ESHUTDOWN) {
		return 0, fmt.Errorf("%w: %s", protocol.ErrDeviceDisconnected, d.path)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: endpoint %02xh: %w", protocol.ErrProtocol, endpoint, err)
	}
	return n, nil
}

func (d *device) Exchange(ctx context.Context, packet []byte) ([]byte, error) {
	n, err := d.bulk(ctx, endpointPacketOut, packet)
	if err != nil {
		return nil, err
	}
	if n != len(packet) {
		return nil, fmt.Errorf("%w: short write to endpoint %02xh", protocol.ErrProtocol, endpointPacketOut)
	}
	out := make([]byte, protocol.MaxPacketSize)
	if n, err = d.bulk(ctx, endpointPacketIn, out); err != nil {
		return nil, err
	}
	if n < 2 || n > protocol.MaxPacketSize {
		return nil, fmt.Errorf("%w: read %d bytes from endpoint %02xh", protocol.ErrProtocol, n, endpointPacketIn)
	}
	return out[:n], nil
}

func (d *device) BulkRead(ctx context.Context, size int) ([]byte, error) {
	out := make([]byte, size)
	n, err := d.bulk(ctx, endpointBulkIn, out)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("%w: read %d of %d bytes from endpoint %02xh", protocol.ErrProtocol, n, size, endpointBulkIn)
	}
	return out, nil
}

func (d *device) BulkWrite(ctx context.Context, p []byte) error {
	n, err := d.bulk(ctx, endpointBulkOut, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes to endpoint %02xh", protocol.ErrProtocol, n, len(p), endpointBulkOut)
	}
	return nil
}

func (d *device) release() error {
	iface := uint32(signInterface)
	_ = d.ioctl(ioctlReleaseInterface, unsafe.Pointer(&iface))
	return unix.Close(d.fd)
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.release()
	if d.lock != nil {
		err = errors.Join(err, d.lock.Unlock())
	}
	return err
}
