// Package device is a session with one sign: handshake, metadata, driver
// telemetry, the stored program and uploads.
//
// A Device owns its transport exclusively. Close invalidates every program
// obtained from the device through a generation counter, so a lazily loaded
// program fails with protocol.ErrDeviceDisconnected instead of touching a
// closed transport.
package device
