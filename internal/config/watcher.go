package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"symphony/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file and reloads it when it changes on disk.
// Editors replace files with rename+create, so the parent directory is
// watched instead of the file itself.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	onReload    func(*Config)
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	reloads int
	errors  int
}

// NewWatcher creates a watcher for the given config path. onReload is invoked
// with the freshly loaded config after every settled change; it must be safe
// to call from the watcher goroutine.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fw,
		path:        path,
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		logging.ConfigWarn("watcher: cannot watch %s: %v", dir, err)
	} else {
		logging.Config("watcher: watching %s for changes to %s", dir, filepath.Base(w.path))
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryConfig).Error("watcher: error closing: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryConfig).Error("watcher error: %v", err)
			w.mu.Lock()
			w.errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return // Ignore chmod, remove
	}

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	pending := false
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			delete(w.debounceMap, path)
			pending = true
		}
	}
	w.mu.Unlock()

	if !pending {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		logging.ConfigWarn("watcher: reload failed, keeping previous config: %v", err)
		w.mu.Lock()
		w.errors++
		w.mu.Unlock()
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.ConfigWarn("watcher: reloaded config invalid, keeping previous: %v", err)
		w.mu.Lock()
		w.errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	logging.Config("watcher: config reloaded from %s", w.path)

	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Reloads returns how many successful reloads have happened.
func (w *Watcher) Reloads() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reloads
}

// IsWatching returns true if the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
