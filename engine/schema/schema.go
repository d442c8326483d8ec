// Package schema defines the structured-output contracts used at every
// decision point. A Contract is an ordered list of fields — required fields
// strictly before optional ones, the decision-critical field first — and
// that ordering is load-bearing: models fill fields in the order they see
// them, so the field a wrong value would derail the most comes first.
package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Schema is a raw JSON-schema document in map form, used where a tool or
// adapter needs the schema as data rather than as a Contract.
type Schema map[string]any

// Result is the evaluation outcome from the underlying validator.
type Result = jsonschema.EvaluationResult

func (s *Schema) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

// Compile builds the validator form of the schema.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// Validate compiles and evaluates value against the schema. Validation is a
// pure function of (schema, value): the same pair always yields the same
// verdict.
func (s *Schema) Validate(_ context.Context, value any) (*Result, error) {
	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	if compiled == nil {
		return nil, nil
	}
	result := compiled.Validate(value)
	if result.Valid {
		return result, nil
	}
	return nil, fmt.Errorf("schema validation failed: %v", result.Errors)
}
