package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roundslab/rounds/pkg/logger"
)

// Manager owns the current configuration value and its reload lifecycle.
// Reads are lock-free through an atomic pointer; file watching is optional
// and only rebuilds the value between turns, never inside one.
type Manager struct {
	service    Service
	current    atomic.Value // stores *Config
	sources    []Source
	callbacks  []func(*Config)
	callbackMu sync.RWMutex
	reloadMu   sync.Mutex
	watcher    *Watcher
	closeOnce  sync.Once
}

// NewManager creates a manager around service; a nil service gets the
// default implementation.
func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{service: service}
}

// Load performs the initial load and remembers the sources for Reload.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*Config, error) {
	m.reloadMu.Lock()
	m.sources = append([]Source(nil), sources...)
	m.reloadMu.Unlock()

	cfg, err := m.service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	m.apply(ctx, cfg)
	return cfg, nil
}

// Get returns the current configuration, or nil before the first Load.
func (m *Manager) Get() *Config {
	val := m.current.Load()
	cfg, ok := val.(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// OnChange registers a callback invoked with each newly applied config.
func (m *Manager) OnChange(fn func(*Config)) {
	if fn == nil {
		return
	}
	m.callbackMu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.callbackMu.Unlock()
}

// Reload re-runs the loader against the remembered sources.
func (m *Manager) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	sources := append([]Source(nil), m.sources...)
	m.reloadMu.Unlock()

	cfg, err := m.service.Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	m.apply(ctx, cfg)
	return nil
}

// StartWatch begins watching file-backed sources and reloads on change.
func (m *Manager) StartWatch(ctx context.Context) error {
	m.reloadMu.Lock()
	sources := append([]Source(nil), m.sources...)
	m.reloadMu.Unlock()

	var paths []string
	for _, source := range sources {
		if p, ok := source.(interface{ Path() string }); ok && p.Path() != "" {
			paths = append(paths, p.Path())
		}
	}
	if len(paths) == 0 {
		return nil
	}
	watcher, err := NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher
	watcher.OnChange(func() {
		log := logger.FromContext(ctx)
		if err := m.Reload(ctx); err != nil {
			log.Warn("config reload failed, keeping previous configuration", "error", err)
			return
		}
		log.Info("configuration reloaded")
	})
	for _, path := range paths {
		if err := watcher.Watch(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// Close stops watching. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
}

func (m *Manager) apply(ctx context.Context, cfg *Config) {
	m.current.Store(cfg)
	m.callbackMu.RLock()
	callbacks := append(([]func(*Config))(nil), m.callbacks...)
	m.callbackMu.RUnlock()
	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.FromContext(ctx).Error("config change callback panicked", "panic", r)
				}
			}()
			fn(cfg)
		}()
	}
}
