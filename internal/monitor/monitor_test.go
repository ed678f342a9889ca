package monitor

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/require"

	"ledsign/internal/logging"
)

func record() (*Monitor, *[]Event) {
	var got []Event
	m := New(logging.NewNop(), func(_ context.Context, ev Event) {
		got = append(got, ev)
	})
	return m, &got
}

func TestHandleEvent(t *testing.T) {
	m, got := record()
	ctx := context.Background()
	env := map[string]string{"DEVNAME": "bus/usb/001/009", "DEVTYPE": "usb_device", "PRODUCT": "fff0/1000/100"}

	m.handleEvent(ctx, netlink.UEvent{Action: netlink.ADD, Env: env})
	m.handleEvent(ctx, netlink.UEvent{Action: netlink.CHANGE, Env: env})
	m.handleEvent(ctx, netlink.UEvent{Action: netlink.REMOVE, Env: env})
	m.handleEvent(ctx, netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})

	require.Equal(t, []Event{
		{Action: Attached, Path: "/dev/bus/usb/001/009"},
		{Action: Detached, Path: "/dev/bus/usb/001/009"},
	}, *got)
}

func TestStopWithoutStart(t *testing.T) {
	m, _ := record()
	require.False(t, m.Running())
	m.Stop()
	m.Stop()
	require.False(t, m.Running())
}

func TestNilHandler(t *testing.T) {
	m := New(nil, nil)
	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"BUSNUM": "002", "DEVNUM": "003"},
	})
}
