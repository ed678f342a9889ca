// Package transfer moves compiled programs between the host and a sign.
//
// Both directions are driven in chunks. During an upload the sign asks for
// byte ranges until it answers with protocol.DoneOffset; during a download
// the host asks for ranges and the sign says how much it will send. A chunk
// of size zero means the sign is busy and the request is retried after
// Options.BusyInterval.
package transfer
