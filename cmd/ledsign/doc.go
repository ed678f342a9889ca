// Package main hosts the ledsign CLI entrypoint and command graph.
//
// The Cobra command tree opens a sign over USB, uploads and downloads
// compiled programs, lists and lints their keypoints, prints driver
// telemetry, and follows signs being plugged in. Configuration resolution,
// device locking, the geometry cache and structured logging are wired here so
// subcommands only deal with presentation.
//
// Keep this package lean: behavior belongs in the internal packages and is
// surfaced here through commands and flags.
package main
