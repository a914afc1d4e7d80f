package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/svcgateway/svcgw/internal/observability"
)

// ReloadCallback is called with the new configuration after a successful
// reload.
type ReloadCallback func(*GatewayConfig)

// Watcher watches the configuration file and triggers reloads on change.
// Reloads that fail to load or validate are dropped; the previous
// configuration stays active.
type Watcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      ReloadCallback
	logger        observability.Logger
	debounceDelay time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounceDelay sets the debounce delay for file change bursts.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// NewWatcher creates a new configuration watcher.
func NewWatcher(path string, callback ReloadCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		logger:        observability.NopLogger(),
		debounceDelay: 100 * time.Millisecond,
		stopCh:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching the configuration file. Watching the directory
// rather than the file keeps the watch alive across editor rename-and-
// replace saves.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.watchLoop(ctx)

	w.logger.Info("config watcher started",
		observability.String("path", w.path))

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	return w.watcher.Close()
}

// watchLoop processes file events until stopped.
func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			// Debounce: editors emit several events per save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", observability.Error(err))

		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reload loads, validates, and publishes the new configuration.
func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration",
			observability.Error(err))
		return
	}

	if err := ValidateConfig(cfg); err != nil {
		w.logger.Error("reloaded config is invalid, keeping previous configuration",
			observability.Error(err))
		return
	}

	w.logger.Info("configuration reloaded",
		observability.String("path", w.path))

	if w.callback != nil {
		w.callback(cfg)
	}
}
