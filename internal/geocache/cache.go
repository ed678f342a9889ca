package geocache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"ledsign/internal/hardware"
	"ledsign/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the cache database was written by another
// schema version.
var ErrSchemaMismatch = errors.New("geometry cache schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry summarizes a cached geometry table.
type Entry struct {
	Key      byte
	Name     string
	Width    uint16
	Points   int
	CachedAt time.Time
}

// Cache is a SQLite backed geometry store. A nil or disabled Cache misses
// every lookup and ignores stores.
type Cache struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or opens the cache database at path. An empty path returns a
// disabled cache.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	logger = logging.NewComponentLogger(logger, "geocache")
	if path == "" {
		return &Cache{logger: logger}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	c := &Cache{db: db, path: path, logger: logger}
	if err := c.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the database location, empty when disabled.
func (c *Cache) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Enabled reports whether the cache persists anything.
func (c *Cache) Enabled() bool {
	return c != nil && c.db != nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) initSchema(ctx context.Context) error {
	var exists int
	if err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if exists == 0 {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)", ErrSchemaMismatch, version, schemaVersion, c.path)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}

func digest(raw []byte) int64 {
	return int64(xxhash.Sum64(raw))
}

// Lookup returns the cached geometry for key.
func (c *Cache) Lookup(ctx context.Context, key byte) (hardware.Geometry, bool, error) {
	if !c.Enabled() {
		return hardware.Geometry{}, false, nil
	}
	var (
		name  string
		width int
		raw   []byte
		sum   int64
	)
	err := retryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx,
			"SELECT name, width, points, digest FROM geometries WHERE geometry_key = ?", int(key),
		).Scan(&name, &width, &raw, &sum)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return hardware.Geometry{}, false, nil
	}
	if err != nil {
		return hardware.Geometry{}, false, fmt.Errorf("lookup geometry %02x: %w", key, err)
	}

	g, parseErr := hardware.ParseGeometry(uint16(width), name, raw)
	if parseErr != nil || digest(raw) != sum {
		logging.WarnWithContext(c.logger, "dropping corrupt geometry cache entry", "geocache_corrupt_entry",
			logging.String("key", fmt.Sprintf("%02x", key)),
			logging.String(logging.FieldImpact, "geometry is fetched from the sign again"),
		)
		if err := c.Remove(ctx, key); err != nil {
			return hardware.Geometry{}, false, err
		}
		return hardware.Geometry{}, false, nil
	}
	return g, true, nil
}

// Store saves g under key, replacing any earlier entry.
func (c *Cache) Store(ctx context.Context, key byte, g hardware.Geometry) error {
	if !c.Enabled() {
		return nil
	}
	raw := g.Raw()
	err := retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO geometries (geometry_key, name, width, points, digest, cached_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(geometry_key) DO UPDATE SET
			   name = excluded.name, width = excluded.width, points = excluded.points,
			   digest = excluded.digest, cached_at = excluded.cached_at`,
			int(key), g.Name, int(g.Width), raw, digest(raw), time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("store geometry %02x: %w", key, err)
	}
	c.logger.Debug("cached geometry",
		logging.String("key", fmt.Sprintf("%02x", key)),
		logging.String("name", g.Name),
		logging.Int("points", len(g.Points)),
	)
	return nil
}

// Remove deletes the entry for key if present.
func (c *Cache) Remove(ctx context.Context, key byte) error {
	if !c.Enabled() {
		return nil
	}
	return retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx, "DELETE FROM geometries WHERE geometry_key = ?", int(key))
		return err
	})
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx, "DELETE FROM geometries")
		return err
	})
}

// List returns every entry ordered by key.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	if !c.Enabled() {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx,
		"SELECT geometry_key, name, width, length(points), cached_at FROM geometries ORDER BY geometry_key")
	if err != nil {
		return nil, fmt.Errorf("list geometries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			key, width, size int
			e                Entry
			cachedAt         string
		)
		if err := rows.Scan(&key, &e.Name, &width, &size, &cachedAt); err != nil {
			return nil, fmt.Errorf("scan geometry: %w", err)
		}
		e.Key = byte(key)
		e.Width = uint16(width)
		e.Points = size / 4
		e.CachedAt, _ = time.Parse(time.RFC3339Nano, cachedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Fetcher serves geometry from the cache and falls back to the wrapped
// fetcher, caching what it returns.
type Fetcher struct {
	cache *Cache
	next  hardware.Fetcher
}

// Wrap returns a fetcher backed by c in front of next.
func (c *Cache) Wrap(next hardware.Fetcher) *Fetcher {
	return &Fetcher{cache: c, next: next}
}

// FetchGeometry implements hardware.Fetcher. Cache failures are logged and
// never fail the fetch.
func (f *Fetcher) FetchGeometry(ctx context.Context, key byte) (hardware.Geometry, error) {
	g, ok, err := f.cache.Lookup(ctx, key)
	if err != nil {
		logging.WarnWithContext(f.cache.logger, "geometry cache lookup failed", "geocache_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "geometry is fetched from the sign"),
		)
	}
	if ok {
		return g, nil
	}
	g, err = f.next.FetchGeometry(ctx, key)
	if err != nil {
		return hardware.Geometry{}, err
	}
	if err := f.cache.Store(ctx, key, g); err != nil {
		logging.WarnWithContext(f.cache.logger, "geometry cache store failed", "geocache_store_failed",
			logging.Error(err),
		)
	}
	return g, nil
}
