package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateDecompiler(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDevice() error {
	if c.Device.Path != "" && !strings.HasPrefix(c.Device.Path, "/dev/bus/usb/") {
		return fmt.Errorf("device.path must be a /dev/bus/usb node, got %q", c.Device.Path)
	}
	if c.Device.StatusReloadMS < 0 {
		return errors.New("device.status_reload_ms must be zero or positive")
	}
	if c.Device.OpenTimeoutSecs <= 0 {
		return errors.New("device.open_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.BusyIntervalMS <= 0 {
		return errors.New("transfer.busy_interval_ms must be positive")
	}
	if c.Transfer.MinChunk < 12 {
		return errors.New("transfer.min_chunk must be at least 12")
	}
	if c.Transfer.MaxChunk < c.Transfer.MinChunk {
		return errors.New("transfer.max_chunk must be greater than or equal to transfer.min_chunk")
	}
	if c.Transfer.MaxChunk > 65536 {
		return errors.New("transfer.max_chunk must not exceed 65536")
	}
	return nil
}

func (c *Config) validateDecompiler() error {
	if c.Decompiler.Tolerance < 0 || c.Decompiler.Tolerance > 8 {
		return errors.New("decompiler.tolerance must be between 0 and 8")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
}
