package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is how long the watcher waits for a burst of
// file events to settle before reloading.
const DefaultDebounceInterval = 250 * time.Millisecond

// ChangeFunc receives the previous and the newly loaded configuration.
type ChangeFunc func(old, updated *Config)

// Watcher reloads a configuration file when it changes on disk. The
// parent directory is watched so editors that replace the file through a
// rename are picked up. A reload that fails to parse or validate is logged
// and the previous configuration stays current.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	load     func(string) (*Config, error)

	current atomic.Pointer[Config]
	fs      *fsnotify.Watcher

	mu       sync.Mutex
	onChange ChangeFunc
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatcherLogger sets the logger used for reload events.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a watcher for path with initial as the current
// configuration. Reloads go through LoadConfigWithEnvOverrides so
// environment overrides keep winning over the file.
func NewWatcher(path string, initial *Config, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher requires a file path")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultDebounceInterval,
		logger:   slog.Default().With("component", "config"),
		load:     LoadConfigWithEnvOverrides,
		fs:       fs,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.current.Store(initial)

	if err := fs.Add(filepath.Dir(w.path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Watch processes file events until ctx is done, calling onChange after
// every successful reload. It blocks.
func (w *Watcher) Watch(ctx context.Context, onChange ChangeFunc) error {
	w.mu.Lock()
	w.onChange = onChange
	w.mu.Unlock()

	w.logger.Info("config watcher started",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.logger.Error("config reload failed", "path", w.path, "error", err)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// Reload loads the file now. On success the new configuration becomes
// current and the change callback, if any, runs.
func (w *Watcher) Reload() error {
	updated, err := w.load(w.path)
	if err != nil {
		return err
	}

	old := w.current.Swap(updated)
	w.logger.Info("config reloaded", "path", w.path)

	w.mu.Lock()
	onChange := w.onChange
	w.mu.Unlock()
	if onChange != nil {
		onChange(old, updated)
	}
	return nil
}

// Close stops watching the file system.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}
