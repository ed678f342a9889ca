package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeDevice(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeDevice() error {
	c.Device.Path = strings.TrimSpace(c.Device.Path)
	if c.Device.Path == "" {
		if value, ok := os.LookupEnv("LEDSIGN_DEVICE"); ok {
			c.Device.Path = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Device.LockDir) == "" {
		c.Device.LockDir = defaultLockDir
	}
	var err error
	if c.Device.LockDir, err = ExpandPath(c.Device.LockDir); err != nil {
		return fmt.Errorf("device.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() error {
	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = defaultCachePath()
	}
	var err error
	if c.Cache.Path, err = ExpandPath(c.Cache.Path); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.Dir, err = ExpandPath(strings.TrimSpace(c.Logging.Dir)); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
