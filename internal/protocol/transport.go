package protocol

import "context"

// Transport moves packets and bulk data to and from one opened sign.
// Implementations need not be safe for concurrent use.
type Transport interface {
	// Exchange sends one request packet and returns the response packet.
	Exchange(ctx context.Context, packet []byte) ([]byte, error)
	// BulkRead reads exactly n bytes from the bulk endpoint.
	BulkRead(ctx context.Context, n int) ([]byte, error)
	// BulkWrite writes p to the bulk endpoint.
	BulkWrite(ctx context.Context, p []byte) error
	Close() error
}

// Backend discovers and opens signs.
type Backend interface {
	Enumerate(ctx context.Context) ([]string, error)
	Open(ctx context.Context, path string) (Transport, error)
}
