// Package logging assembles structured slog loggers and formatting helpers used
// across ledsign.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so transfer and device code can
// tag log lines with the device node and transfer session. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
