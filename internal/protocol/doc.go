// Package protocol encodes the control packets exchanged with a sign and
// drives request/response calls over a Transport.
//
// Every packet starts with a kind byte and its total length, followed by a
// little-endian body whose size is fixed per kind. Program data moves
// outside the packet stream as bulk transfers.
package protocol
