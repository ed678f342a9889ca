package protocol

import "errors"

var (
	// ErrProtocol marks a response with the wrong kind or size, or a failed
	// bulk transfer.
	ErrProtocol = errors.New("protocol error")
	// ErrUnsupportedProtocol marks a sign that rejected the host protocol
	// version during the handshake.
	ErrUnsupportedProtocol = errors.New("protocol version not supported")
	// ErrDeviceNotFound marks an enumeration that found no sign or a path
	// that does not exist.
	ErrDeviceNotFound = errors.New("no device found")
	// ErrDeviceInUse marks a sign already claimed by another handle.
	ErrDeviceInUse = errors.New("device already in use")
	// ErrDeviceDisconnected marks an operation on a closed or unplugged sign.
	ErrDeviceDisconnected = errors.New("device disconnected")
	// ErrAccessDenied marks an upload to a sign that only grants read access.
	ErrAccessDenied = errors.New("program upload not allowed")
)
