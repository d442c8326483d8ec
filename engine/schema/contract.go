package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// Field is one named slot in a Contract, in its prompt-visible position.
type Field struct {
	Name        string
	Type        string // string, integer, number, boolean, object, array
	Description string
	Required    bool
	Enum        []string
	Items       Schema // array element schema
	Properties  Schema // free-form nested object schema
}

// Contract is an ordered structured-output agreement with the generation
// backend. Field order is part of the contract, not presentation.
type Contract struct {
	Name        string
	Description string
	Fields      []Field
	// Strict requests provider-side strict schema enforcement where the
	// backend supports it (OpenAI json_schema mode).
	Strict bool
}

// Check enforces the registry invariants: at least one field, the first
// field required, no required field after an optional one, unique names.
func (c *Contract) Check() error {
	if c.Name == "" {
		return fmt.Errorf("contract name is required")
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("contract %s has no fields", c.Name)
	}
	if !c.Fields[0].Required {
		return fmt.Errorf("contract %s: first field %s must be required (decision-critical field leads)", c.Name, c.Fields[0].Name)
	}
	seen := make(map[string]struct{}, len(c.Fields))
	optionalStarted := false
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("contract %s has an unnamed field", c.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("contract %s: duplicate field %s", c.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Required && optionalStarted {
			return fmt.Errorf("contract %s: required field %s after optional fields", c.Name, f.Name)
		}
		if !f.Required {
			optionalStarted = true
		}
	}
	return nil
}

// RequiredFields returns the names of required fields in order.
func (c *Contract) RequiredFields() []string {
	out := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

type fieldDoc struct {
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Items       Schema   `json:"items,omitempty"`
	Properties  Schema   `json:"properties,omitempty"`
}

// SchemaJSON serializes the contract as a JSON-schema object document with
// properties emitted in field order. Plain json.Marshal of a map would
// randomize the order, so the object is assembled by hand.
func (c *Contract) SchemaJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`{"type":"object","properties":{`)
	for i, f := range c.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		prop, err := json.Marshal(fieldDoc{
			Type:        f.Type,
			Description: f.Description,
			Enum:        f.Enum,
			Items:       f.Items,
			Properties:  f.Properties,
		})
		if err != nil {
			return nil, fmt.Errorf("contract %s: failed to serialize field %s: %w", c.Name, f.Name, err)
		}
		b.Write(name)
		b.WriteByte(':')
		b.Write(prop)
	}
	b.WriteString(`},"required":`)
	required, err := json.Marshal(c.RequiredFields())
	if err != nil {
		return nil, err
	}
	b.Write(required)
	b.WriteString(`,"additionalProperties":false}`)
	return b.Bytes(), nil
}

// AsSchema returns the map form for adapters and tools that consume raw
// schema documents. Map form loses field order; use SchemaJSON or Describe
// anywhere order matters.
func (c *Contract) AsSchema() (Schema, error) {
	data, err := c.SchemaJSON()
	if err != nil {
		return nil, err
	}
	var out Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Describe renders the ordered, human-readable field listing injected into
// prompts for backends without native schema enforcement.
func (c *Contract) Describe() string {
	var b strings.Builder
	for i, f := range c.Fields {
		requirement := "required"
		if !f.Required {
			requirement = "optional"
		}
		fmt.Fprintf(&b, "%d. %s (%s, %s)", i+1, f.Name, f.Type, requirement)
		if f.Description != "" {
			b.WriteString(": ")
			b.WriteString(f.Description)
		}
		if len(f.Enum) > 0 {
			fmt.Fprintf(&b, " — one of: %s", strings.Join(f.Enum, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Compile builds the validator for this contract. Callers should prefer
// Registry.ValidateValue, which caches compiled contracts.
func (c *Contract) Compile() (*jsonschema.Schema, error) {
	data, err := c.SchemaJSON()
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile contract %s: %w", c.Name, err)
	}
	return compiled, nil
}
