package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"ledsign/internal/logging"
)

// DefaultDebounce is the quiet period after the last write before a change
// is reported.
const DefaultDebounce = 250 * time.Millisecond

// File watches a single path.
type File struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewFile starts watching path. A debounce of zero selects DefaultDebounce.
func NewFile(path string, debounce time.Duration, logger *slog.Logger) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &File{
		path:     abs,
		debounce: debounce,
		watcher:  w,
		logger:   logging.NewComponentLogger(logger, "watch").With(logging.String("path", abs)),
	}, nil
}

// Path returns the absolute path being watched.
func (f *File) Path() string {
	return f.path
}

func (f *File) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != f.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// Run calls onChange each time the file settles, until ctx is done or the
// watcher fails. An error from onChange is logged and watching continues.
func (f *File) Run(ctx context.Context, onChange func(ctx context.Context) error) error {
	defer f.watcher.Close()

	timer := time.NewTimer(f.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			if !f.relevant(ev) {
				continue
			}
			f.logger.Debug("file event", logging.String("op", ev.Op.String()))
			timer.Reset(f.debounce)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", f.path, err)
		case <-timer.C:
			if err := onChange(ctx); err != nil {
				logging.WarnWithContext(f.logger, "change handler failed", "watch_handler_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "the sign keeps its previous program"),
				)
			}
		}
	}
}
