package tool

import (
	"sync"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/schema"
)

// Catalog holds the registered tool definitions. Registration also places
// each tool's argument contract in the schema registry, so the selector's
// stage-2 call and the gateway's validation share one compiled source of
// truth.
type Catalog struct {
	mu       sync.RWMutex
	registry *schema.Registry
	defs     map[string]*Definition
	order    []string
}

// NewCatalog creates an empty catalog bound to a schema registry.
func NewCatalog(registry *schema.Registry) *Catalog {
	return &Catalog{
		registry: registry,
		defs:     make(map[string]*Definition),
	}
}

// Register validates def and adds it. The argument contract is registered
// under its own name; a contract that violates the ordering discipline
// rejects the whole tool.
func (c *Catalog) Register(def *Definition) error {
	if def == nil {
		return core.NewError(nil, "INVALID_TOOL", map[string]any{"reason": "nil definition"})
	}
	if err := def.Check(); err != nil {
		return core.NewError(err, "INVALID_TOOL", map[string]any{"tool": def.Name})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.Name]; exists {
		return core.NewError(nil, "DUPLICATE_TOOL", map[string]any{"tool": def.Name})
	}
	if err := c.registry.Register(def.Args); err != nil {
		return err
	}
	c.defs[def.Name] = def
	c.order = append(c.order, def.Name)
	return nil
}

// Get returns the named definition.
func (c *Catalog) Get(name string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	if !ok {
		return nil, core.NewError(nil, "TOOL_NOT_FOUND", map[string]any{"tool": name})
	}
	return def, nil
}

// Names returns tool names in registration order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Definitions returns all definitions in registration order.
func (c *Catalog) Definitions() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Definition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.defs[name])
	}
	return out
}

// CategoryOf returns the category of the named tool, or "" if unknown.
func (c *Catalog) CategoryOf(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if def, ok := c.defs[name]; ok {
		return def.Category
	}
	return ""
}

// Registry exposes the bound schema registry.
func (c *Catalog) Registry() *schema.Registry {
	return c.registry
}
