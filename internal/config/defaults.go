package config

import "time"

const (
	defaultConfigPath        = "~/.config/ledsign/config.toml"
	defaultLockDir           = "~/.local/state/ledsign/locks"
	defaultGeometryCachePath = "~/.cache/ledsign/geometry.db"
	defaultStatusReloadMS    = 500
	defaultOpenTimeoutSecs   = 5
	defaultBusyIntervalMS    = 20
	defaultMaxChunk          = 65536
	defaultMinChunk          = 64
	defaultTolerance         = 2
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Device: Device{
			LockDir:         defaultLockDir,
			StatusReloadMS:  defaultStatusReloadMS,
			OpenTimeoutSecs: defaultOpenTimeoutSecs,
		},
		Transfer: Transfer{
			BusyIntervalMS: defaultBusyIntervalMS,
			MaxChunk:       defaultMaxChunk,
			MinChunk:       defaultMinChunk,
		},
		Decompiler: Decompiler{
			Tolerance: defaultTolerance,
		},
		Cache: GeometryCache{
			Enabled: true,
			Path:    defaultCachePath(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// StatusReloadInterval returns how long driver status readings stay fresh.
func (c *Config) StatusReloadInterval() time.Duration {
	return time.Duration(c.Device.StatusReloadMS) * time.Millisecond
}

// BusyInterval returns the pause between polls while the sign is busy.
func (c *Config) BusyInterval() time.Duration {
	return time.Duration(c.Transfer.BusyIntervalMS) * time.Millisecond
}

// OpenTimeout bounds the handshake performed when a sign is opened.
func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.Device.OpenTimeoutSecs) * time.Second
}
