package config

import (
	"context"
	"sync"

	"github.com/roundslab/rounds/pkg/logger"
)

// ContextKey is the type used for config values stored in context.
type ContextKey string

// ManagerCtxKey is the context key under which the *Manager is stored.
const ManagerCtxKey ContextKey = "config_manager"

// ContextWithManager stores the configuration manager in the context.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ManagerCtxKey, m)
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// ManagerFromContext retrieves the manager from the context, falling back
// to a lazily-initialized default loaded from built-in defaults plus the
// environment. Components therefore always see a usable configuration even
// when main did not attach one.
func ManagerFromContext(ctx context.Context) *Manager {
	if ctx != nil {
		if m, ok := ctx.Value(ManagerCtxKey).(*Manager); ok && m != nil {
			return m
		}
	}
	return getDefaultManager(ctx)
}

// FromContext returns the active *Config for ctx.
func FromContext(ctx context.Context) *Config {
	m := ManagerFromContext(ctx)
	if m == nil {
		return nil
	}
	if cfg := m.Get(); cfg != nil {
		return cfg
	}
	return Default()
}

func getDefaultManager(ctx context.Context) *Manager {
	defaultManagerOnce.Do(func() {
		m := NewManager(NewService())
		if _, err := m.Load(ctx, NewEnvProvider()); err != nil {
			logger.FromContext(ctx).Warn(
				"failed to load default configuration, using built-in defaults",
				"error", err,
			)
		}
		defaultManager = m
	})
	return defaultManager
}
