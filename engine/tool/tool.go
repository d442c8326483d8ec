// Package tool is the gateway between the orchestrator and the reference
// tools. Every invocation, whatever happens underneath, comes back as one
// uniform Result envelope: arguments validated against the tool's
// contract, failures mapped onto a closed category set, and all text
// rendered user-safe before any prompt can see it.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roundslab/rounds/engine/schema"
)

// Outcome states of an invocation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeError   Outcome = "error"
)

// ErrorCategory is the closed failure taxonomy. Everything a tool can do
// wrong maps onto one of these six; downstream retry and recovery
// decisions key off the category, never off raw error text.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorAmbiguousMatch ErrorCategory = "ambiguous_match"
	ErrorInvalidArgs    ErrorCategory = "invalid_args"
	ErrorServerError    ErrorCategory = "server_error"
)

// Valid reports whether c is one of the six categories.
func (c ErrorCategory) Valid() bool {
	switch c {
	case ErrorTimeout, ErrorRateLimited, ErrorNotFound,
		ErrorAmbiguousMatch, ErrorInvalidArgs, ErrorServerError:
		return true
	}
	return false
}

// Retryable reports whether the category is worth another attempt at the
// same tool. The mapping is deterministic and shared with the Result
// Classifier.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case ErrorTimeout, ErrorRateLimited, ErrorServerError:
		return true
	}
	return false
}

// CategoryError lets handlers declare a classified failure. Reason is
// internal detail for logs; it never reaches rendered text or prompts.
type CategoryError struct {
	Category   ErrorCategory
	Reason     string
	Candidates []string
	Field      string
}

func (e *CategoryError) Error() string {
	if e.Reason == "" {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Reason)
}

// NewCategoryError builds a classified failure.
func NewCategoryError(category ErrorCategory, reason string) *CategoryError {
	return &CategoryError{Category: category, Reason: reason}
}

// Result is the uniform envelope every invocation produces. Once appended
// to a turn's state it belongs to the turn; the gateway keeps no reference.
type Result struct {
	CallID        string          `json:"call_id"`
	ToolName      string          `json:"tool_name"`
	ToolLabel     string          `json:"tool_label"`
	Category      string          `json:"category,omitempty"`
	Arguments     map[string]any  `json:"arguments,omitempty"`
	Outcome       Outcome         `json:"outcome"`
	ErrorCategory ErrorCategory   `json:"error_category,omitempty"`
	Candidates    []string        `json:"candidates,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	RenderedText  string          `json:"rendered_text"`
	Duration      time.Duration   `json:"duration"`
}

// IsError reports whether the invocation failed.
func (r *Result) IsError() bool {
	return r.Outcome == OutcomeError
}

// Handler does the tool's actual work. A nil or empty payload means the
// call succeeded but found nothing. Classified failures are returned as
// *CategoryError; anything else is treated as server_error.
type Handler func(ctx context.Context, args map[string]any) (json.RawMessage, error)

// Formatter renders a successful payload into the human-facing text that
// represents this result in prompts and the final response. It must use
// the label, never the internal tool name.
type Formatter func(label string, payload json.RawMessage) (string, error)

// Definition describes one registered tool.
type Definition struct {
	// Name is the internal identifier the selector chooses by. It must
	// never appear in rendered text.
	Name string
	// Label is the human-facing name substituted into every rendered line.
	Label string
	// Category places the tool in the pattern table (records, safety,
	// literature).
	Category string
	// Description is the selector-prompt text.
	Description string
	// ReadOnly declares the handler free of side effects.
	ReadOnly bool
	// UserArgs names arguments only the user can supply; a missing
	// required argument in this set routes recovery to a clarification
	// instead of a retry.
	UserArgs []string
	// Timeout overrides the gateway default for this tool when positive.
	Timeout time.Duration
	// Args is the argument contract, decision-critical field first.
	Args *schema.Contract
	// Handler does the work.
	Handler Handler
	// Format renders successful payloads.
	Format Formatter
}

// Check validates the definition shape.
func (d *Definition) Check() error {
	if d.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if d.Label == "" {
		return fmt.Errorf("tool %s requires a human-facing label", d.Name)
	}
	if d.Category == "" {
		return fmt.Errorf("tool %s requires a category", d.Name)
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %s requires a handler", d.Name)
	}
	if d.Format == nil {
		return fmt.Errorf("tool %s requires a formatter", d.Name)
	}
	if d.Args == nil {
		return fmt.Errorf("tool %s requires an argument contract", d.Name)
	}
	return d.Args.Check()
}

// UserSupplied reports whether the named argument can only come from the
// user.
func (d *Definition) UserSupplied(arg string) bool {
	for _, name := range d.UserArgs {
		if name == arg {
			return true
		}
	}
	return false
}

// MissingRequiredArgs returns required contract fields absent from args,
// in contract order.
func (d *Definition) MissingRequiredArgs(args map[string]any) []string {
	var missing []string
	for _, name := range d.Args.RequiredFields() {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
