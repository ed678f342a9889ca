// Package monitor reports signs being plugged in and removed by listening to
// udev netlink events.
package monitor
