package schema

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

// FromStruct derives a Contract from a Go struct: struct declaration order
// becomes field order, and fields tagged `json:",omitempty"` become
// optional. Keeping contracts as structs gives each decision a typed
// destination to decode into once validated.
func FromStruct(name, description string, v any) (*Contract, error) {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	reflected := reflector.Reflect(v)
	if reflected == nil || reflected.Properties == nil {
		return nil, fmt.Errorf("contract %s: %T did not reflect to an object schema", name, v)
	}
	contract := &Contract{Name: name, Description: description, Strict: true}
	for pair := reflected.Properties.Oldest(); pair != nil; pair = pair.Next() {
		field := Field{
			Name:        pair.Key,
			Type:        pair.Value.Type,
			Description: pair.Value.Description,
			Required:    slices.Contains(reflected.Required, pair.Key),
		}
		for _, raw := range pair.Value.Enum {
			field.Enum = append(field.Enum, fmt.Sprint(raw))
		}
		if pair.Value.Items != nil {
			field.Items = toSchemaMap(pair.Value.Items)
		}
		if pair.Value.Type == "object" && pair.Value.Properties != nil {
			nested := toSchemaMap(pair.Value)
			if props, ok := nested["properties"].(map[string]any); ok {
				field.Properties = Schema(props)
			}
		}
		contract.Fields = append(contract.Fields, field)
	}
	if err := contract.Check(); err != nil {
		return nil, err
	}
	return contract, nil
}

// MustFromStruct is FromStruct for package-level contract definitions.
func MustFromStruct(name, description string, v any) *Contract {
	contract, err := FromStruct(name, description, v)
	if err != nil {
		panic(err)
	}
	return contract
}

func toSchemaMap(s *jsonschema.Schema) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
