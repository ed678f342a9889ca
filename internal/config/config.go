package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Device selects and guards the sign the CLI talks to.
type Device struct {
	// Path is a /dev/bus/usb/BBB/DDD node. Empty means the first sign found.
	Path            string `toml:"path"`
	LockDir         string `toml:"lock_dir"`
	StatusReloadMS  int    `toml:"status_reload_ms"`
	OpenTimeoutSecs int    `toml:"open_timeout_seconds"`
}

// Transfer tunes the chunked program upload and download.
type Transfer struct {
	BusyIntervalMS int `toml:"busy_interval_ms"`
	MaxChunk       int `toml:"max_chunk"`
	MinChunk       int `toml:"min_chunk"`
}

// Decompiler tunes keypoint reconstruction from frame streams.
type Decompiler struct {
	// Tolerance is the allowed deviation from a straight ramp in quarter
	// channel steps.
	Tolerance int `toml:"tolerance"`
}

// GeometryCache configures the on-disk cache of hardware geometry tables.
type GeometryCache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Program holds defaults for compiling and saving programs.
type Program struct {
	BypassVerification bool `toml:"bypass_verification"`
}

// Config is the ledsign configuration file.
type Config struct {
	Device     Device        `toml:"device"`
	Transfer   Transfer      `toml:"transfer"`
	Decompiler Decompiler    `toml:"decompiler"`
	Cache      GeometryCache `toml:"cache"`
	Logging    Logging       `toml:"logging"`
	Program    Program       `toml:"program"`
}

// Source records where a configuration came from.
type Source struct {
	Path string
	// Exists is false when no file was found and defaults were used.
	Exists bool
}

// ConfigEnv names a config file used when no explicit path is given.
const ConfigEnv = "LEDSIGN_CONFIG"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load reads the configuration at path, or the first of $LEDSIGN_CONFIG,
// the user config and ./ledsign.toml that exists when path is empty. The
// result is normalized and validated.
func Load(path string) (*Config, Source, error) {
	src, err := locate(strings.TrimSpace(path))
	if err != nil {
		return nil, Source{}, err
	}
	cfg := Default()
	if src.Exists {
		if err := decodeFile(src.Path, &cfg); err != nil {
			return nil, Source{}, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, Source{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, Source{}, err
	}
	return &cfg, src, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func locate(explicit string) (Source, error) {
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(ConfigEnv))
	}
	if explicit != "" {
		p, err := ExpandPath(explicit)
		if err != nil {
			return Source{}, err
		}
		ok, err := isFile(p)
		if err != nil {
			return Source{}, err
		}
		return Source{Path: p, Exists: ok}, nil
	}

	user, err := DefaultConfigPath()
	if err != nil {
		return Source{}, err
	}
	local, err := filepath.Abs("ledsign.toml")
	if err != nil {
		return Source{}, err
	}
	for _, candidate := range []string{user, local} {
		if ok, _ := isFile(candidate); ok {
			return Source{Path: candidate, Exists: true}, nil
		}
	}
	return Source{Path: user}, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the lock, log and cache directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Device.LockDir}
	if c.Logging.Dir != "" {
		dirs = append(dirs, c.Logging.Dir)
	}
	if c.Cache.Enabled && c.Cache.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
// The empty string is returned unchanged.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}

func defaultCachePath() string {
	if base := strings.TrimSpace(os.Getenv("XDG_CACHE_HOME")); base != "" {
		return filepath.Join(base, "ledsign", "geometry.db")
	}
	return defaultGeometryCachePath
}

// ErrConfigExists is returned by WriteSample when the target exists and
// overwrite is false.
var ErrConfigExists = errors.New("config file already exists")

// WriteSample writes the annotated sample configuration to path, creating
// parent directories.
func WriteSample(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w at %s (use --overwrite to replace it)", ErrConfigExists, path)
	}
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := io.WriteString(f, sampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}
