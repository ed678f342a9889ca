// Package config loads, normalizes, and validates ledsign configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the LEDSIGN_DEVICE environment
// fallback. The Config type centralizes every knob the CLI needs: which sign
// to open, transfer pacing, decompiler tolerance, the geometry cache and
// logging.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
