package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a configuration file and delivers re-validated
// configurations on change. Writes are debounced so editors that perform
// multiple filesystem operations per save trigger a single reload.
//
// A configuration that fails to load or validate after a change is logged
// and dropped; the previous configuration stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	updates chan *Config
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger used for watch events.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounceInterval overrides the reload debounce interval.
func WithDebounceInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		path:     path,
		watcher:  fsw,
		logger:   slog.Default().With("component", "config.watcher"),
		debounce: 100 * time.Millisecond,
		updates:  make(chan *Config, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Updates returns the channel on which reloaded configurations are delivered.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Start begins watching. It returns immediately; reloads are delivered on
// Updates until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.path, err)
	}
	w.running = true

	go w.loop(ctx)
	return nil
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce: restart the timer on every event
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfigWithEnvOverrides(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "error", err)
		return
	}

	// Drop a pending update that was never consumed
	select {
	case <-w.updates:
	default:
	}

	w.updates <- cfg
	w.logger.Info("config reloaded", "path", w.path)
}
