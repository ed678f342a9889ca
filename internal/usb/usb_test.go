package usb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/gofrs/flock"
	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/require"

	"ledsign/internal/logging"
	"ledsign/internal/protocol"
	"ledsign/internal/testsupport"
)

func TestDevicePath(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"devname", map[string]string{"DEVNAME": "bus/usb/001/004"}, "/dev/bus/usb/001/004"},
		{"absolute", map[string]string{"DEVNAME": "/dev/bus/usb/002/010"}, "/dev/bus/usb/002/010"},
		{"numbers", map[string]string{"BUSNUM": "003", "DEVNUM": "007"}, "/dev/bus/usb/003/007"},
		{"missing", map[string]string{"BUSNUM": "003"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DevicePath(tt.env))
		})
	}
}

func TestLockName(t *testing.T) {
	name, err := LockName("/dev/bus/usb/001/004")
	require.NoError(t, err)
	require.Equal(t, "001-004.lock", name)

	for _, bad := range []string{"/dev/ttyUSB0", "/dev/bus/usb/001", "/dev/bus/usb/001/004/x", "relative/001/004"} {
		_, err := LockName(bad)
		require.ErrorIs(t, err, protocol.ErrDeviceNotFound, bad)
	}
}

func TestMatcher(t *testing.T) {
	sign := map[string]string{"DEVTYPE": "usb_device", "PRODUCT": "fff0/1000/100"}
	other := map[string]string{"DEVTYPE": "usb_device", "PRODUCT": "46d/c52b/1211"}
	iface := map[string]string{"DEVTYPE": "usb_interface", "PRODUCT": "fff0/1000/100"}

	m := Matcher()
	require.True(t, m.Evaluate(netlink.UEvent{Action: netlink.ADD, Env: sign}))
	require.True(t, m.Evaluate(netlink.UEvent{Action: netlink.CHANGE, Env: sign}))
	require.False(t, m.Evaluate(netlink.UEvent{Action: netlink.ADD, Env: other}))
	require.False(t, m.Evaluate(netlink.UEvent{Action: netlink.ADD, Env: iface}))

	m = Matcher("add", "remove")
	require.True(t, m.Evaluate(netlink.UEvent{Action: netlink.ADD, Env: sign}))
	require.True(t, m.Evaluate(netlink.UEvent{Action: netlink.REMOVE, Env: sign}))
	require.False(t, m.Evaluate(netlink.UEvent{Action: netlink.CHANGE, Env: sign}))
}

func TestTransferLayouts(t *testing.T) {
	require.Equal(t, uintptr(24), unsafe.Sizeof(controlTransfer{}))
	require.Equal(t, uintptr(16), unsafe.Offsetof(controlTransfer{}.data))
	require.Equal(t, uintptr(24), unsafe.Sizeof(bulkTransfer{}))
	require.Equal(t, uintptr(16), unsafe.Offsetof(bulkTransfer{}.data))
}

func TestOpenLockedDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := NewBackend(cfg, logging.NewNop())

	require.NoError(t, os.MkdirAll(cfg.Device.LockDir, 0o755))
	held := flock.New(filepath.Join(cfg.Device.LockDir, "001-004.lock"))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	_, err = b.Open(context.Background(), "/dev/bus/usb/001/004")
	require.ErrorIs(t, err, protocol.ErrDeviceInUse)
}

func TestOpenMissingDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := NewBackend(cfg, logging.NewNop())

	_, err := b.Open(context.Background(), "/dev/bus/usb/999/999")
	require.ErrorIs(t, err, protocol.ErrDeviceNotFound)

	// the lock is released after a failed open
	lock := flock.New(filepath.Join(cfg.Device.LockDir, "999-999.lock"))
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Unlock())
}
