package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"

	"github.com/roundslab/rounds/pkg/logger"
)

// Watcher watches configuration files and fires debounced change callbacks.
// Editors often emit several write/rename events per save; debouncing folds
// them into one reload.
type Watcher struct {
	watcher   *fsnotify.Watcher
	mu        sync.RWMutex
	callbacks []func()
	watched   map[string]struct{}
	notify    func()
	stopCh    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

const watchDebounce = 200 * time.Millisecond

// NewWatcher creates an idle watcher; Watch starts the event loop.
func NewWatcher() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		watcher: fsWatcher,
		watched: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
	}
	debounced, _ := debounce.New(watchDebounce, w.fire)
	w.notify = debounced
	return w, nil
}

// OnChange registers a callback for debounced file changes.
func (w *Watcher) OnChange(fn func()) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Watch adds path to the watch set. The parent directory is watched so
// rename-based saves keep working after the original inode disappears.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve watch path %s: %w", path, err)
	}
	w.mu.Lock()
	w.watched[abs] = struct{}{}
	w.mu.Unlock()
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	w.startOnce.Do(func() { go w.run(ctx) })
	return nil
}

// Close stops the watcher; it cannot be restarted.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watcher) run(ctx context.Context) {
	log := logger.FromContext(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			log.Debug("config file changed", "path", event.Name, "op", event.Op.String())
			w.notify()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.watched[abs]
	return ok
}

func (w *Watcher) fire() {
	w.mu.RLock()
	callbacks := append(([]func())(nil), w.callbacks...)
	w.mu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
}
