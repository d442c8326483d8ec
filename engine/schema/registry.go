package schema

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonschema"

	"github.com/roundslab/rounds/engine/core"
)

const compiledCacheSize = 64

// Registry holds every registered contract and a cache of their compiled
// validators. Contracts are immutable once registered; registration fails
// fast on any ordering violation so a bad contract never reaches a prompt.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
	compiled  *lru.Cache[string, *jsonschema.Schema]
}

// NewRegistry creates an empty registry.
func NewRegistry() (*Registry, error) {
	cache, err := lru.New[string, *jsonschema.Schema](compiledCacheSize)
	if err != nil {
		return nil, core.NewError(err, "REGISTRY_INIT_FAILED", nil)
	}
	return &Registry{
		contracts: make(map[string]*Contract),
		compiled:  cache,
	}, nil
}

// Register validates and stores a contract. Duplicate names are rejected.
func (r *Registry) Register(c *Contract) error {
	if c == nil {
		return core.NewError(nil, "INVALID_CONTRACT", map[string]any{"reason": "nil contract"})
	}
	if err := c.Check(); err != nil {
		return core.NewError(err, "INVALID_CONTRACT", map[string]any{"contract": c.Name})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[c.Name]; exists {
		return core.NewError(nil, "DUPLICATE_CONTRACT", map[string]any{"contract": c.Name})
	}
	r.contracts[c.Name] = c
	return nil
}

// MustRegister panics on registration failure; used for the engine's own
// decision contracts, which are defined at package level.
func (r *Registry) MustRegister(c *Contract) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Get returns the named contract.
func (r *Registry) Get(name string) (*Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[name]
	if !ok {
		return nil, core.NewError(nil, "CONTRACT_NOT_FOUND", map[string]any{"contract": name})
	}
	return c, nil
}

// List returns all contract names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	return names
}

// ValidateValue evaluates value against the named contract using the
// compiled cache. The verdict for a (contract, value) pair is stable across
// calls; there is no hidden state.
func (r *Registry) ValidateValue(_ context.Context, name string, value any) error {
	r.mu.RLock()
	contract, ok := r.contracts[name]
	r.mu.RUnlock()
	if !ok {
		return core.NewError(nil, "CONTRACT_NOT_FOUND", map[string]any{"contract": name})
	}
	compiled, err := r.compiledFor(contract)
	if err != nil {
		return err
	}
	result := compiled.Validate(value)
	if !result.Valid {
		return core.NewError(
			fmt.Errorf("value does not satisfy contract %s: %v", name, result.Errors),
			"SCHEMA_VALIDATION_FAILED",
			map[string]any{"contract": name},
		)
	}
	return nil
}

func (r *Registry) compiledFor(contract *Contract) (*jsonschema.Schema, error) {
	if cached, ok := r.compiled.Get(contract.Name); ok {
		return cached, nil
	}
	compiled, err := contract.Compile()
	if err != nil {
		return nil, core.NewError(err, "SCHEMA_COMPILE_FAILED", map[string]any{"contract": contract.Name})
	}
	r.compiled.Add(contract.Name, compiled)
	return compiled, nil
}
