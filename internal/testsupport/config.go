package testsupport

import (
	"path/filepath"
	"testing"

	"ledsign/internal/config"
)

// NewConfig returns defaults rooted in a fresh temp directory. Busy polling
// is shortened to 1ms so tests against a busy fake sign stay fast. Each
// tweak runs after the defaults are applied.
func NewConfig(t testing.TB, tweaks ...func(*config.Config)) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Device.LockDir = filepath.Join(root, "locks")
	cfg.Cache.Path = filepath.Join(root, "cache", "geometry.db")
	cfg.Logging.Dir = filepath.Join(root, "logs")
	cfg.Transfer.BusyIntervalMS = 1
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	return &cfg
}

// BaseDir is the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Device.LockDir)
}
