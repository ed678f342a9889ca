package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType is the standardized key for a machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized key for the suggested next step after a warning.
	FieldErrorHint = "error_hint"
	// FieldDevice is the standardized key for the USB device node of a sign.
	FieldDevice = "device"
	// FieldCorrelationID is the standardized structured logging key for transfer session identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey string

const (
	deviceKey  contextKey = "device"
	sessionKey contextKey = "session"
)

// WithDevice annotates context with the device node being worked on.
func WithDevice(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, deviceKey, path)
}

// DeviceFromContext extracts the device node if present.
func DeviceFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(deviceKey).(string)
	return v, ok && v != ""
}

// WithSession annotates context with a transfer session identifier.
func WithSession(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, id)
}

// SessionFromContext extracts the transfer session identifier if present.
func SessionFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionKey).(string)
	return v, ok && v != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if path, ok := DeviceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDevice, path))
	}
	if id, ok := SessionFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}
