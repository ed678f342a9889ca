package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ledsign/internal/config"
	"ledsign/internal/device"
	"ledsign/internal/geocache"
	"ledsign/internal/logging"
	"ledsign/internal/program"
	"ledsign/internal/protocol"
	"ledsign/internal/transfer"
	"ledsign/internal/usb"
)

type commandContext struct {
	configFlag *string
	deviceFlag *string
	backend    protocol.Backend

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, deviceFlag *string, backend protocol.Backend) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		deviceFlag: deviceFlag,
		backend:    backend,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) signBackend(cfg *config.Config, logger *slog.Logger) protocol.Backend {
	if c.backend != nil {
		return c.backend
	}
	return usb.NewBackend(cfg, logger)
}

// devicePath prefers the --device flag over the configured path.
func (c *commandContext) devicePath(cfg *config.Config) string {
	if c.deviceFlag != nil {
		if path := strings.TrimSpace(*c.deviceFlag); path != "" {
			return path
		}
	}
	return cfg.Device.Path
}

func (c *commandContext) openCache(cfg *config.Config, logger *slog.Logger) (*geocache.Cache, error) {
	if !cfg.Cache.Enabled {
		return geocache.Open("", logger)
	}
	return geocache.Open(cfg.Cache.Path, logger)
}

func programOptions(cfg *config.Config, logger *slog.Logger) program.Options {
	return program.Options{Tolerance: cfg.Decompiler.Tolerance, Logger: logger}
}

func deviceOptions(cfg *config.Config, cache *geocache.Cache, logger *slog.Logger) device.Options {
	return device.Options{
		StatusReload: cfg.StatusReloadInterval(),
		Transfer: transfer.Options{
			BusyInterval: cfg.BusyInterval(),
			MaxChunk:     cfg.Transfer.MaxChunk,
			MinChunk:     cfg.Transfer.MinChunk,
			Logger:       logger,
		},
		Program: programOptions(cfg, logger),
		Cache:   cache,
		Logger:  logger,
	}
}

// session is everything a device command needs.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	dev    *device.Device
}

// withDevice opens the selected sign, runs fn and closes the sign again.
func (c *commandContext) withDevice(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	cache, err := c.openCache(cfg, logger)
	if err != nil {
		return fmt.Errorf("open geometry cache: %w", err)
	}
	defer cache.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	openCtx, cancel := context.WithTimeout(ctx, cfg.OpenTimeout())
	dev, err := device.Open(openCtx, c.signBackend(cfg, logger), c.devicePath(cfg), deviceOptions(cfg, cache, logger))
	cancel()
	if err != nil {
		return err
	}
	defer dev.Close()
	return fn(ctx, &session{cfg: cfg, logger: logger, dev: dev})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
