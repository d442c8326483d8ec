package llmadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MockClient is the offline provider used for demos and smoke runs. For
// structured requests it derives a plausible value from the schema itself
// (first enum value, placeholder strings), so every contract round-trips
// without a real backend.
type MockClient struct {
	model string
}

// NewMockClient creates the offline demo client.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock-1"
	}
	return &MockClient{model: model}
}

// GenerateContent implements Client.
func (m *MockClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCode(ErrCodeBadRequest, err.Error(), "mock", err)
	}
	if req.Output == nil {
		return &Response{Content: m.freeform(req)}, nil
	}
	value, err := valueFromSchema(req.Output.Schema)
	if err != nil {
		return nil, NewErrorWithCode(ErrCodeUnknown, err.Error(), "mock", err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, NewErrorWithCode(ErrCodeUnknown, err.Error(), "mock", err)
	}
	return &Response{Content: string(data)}, nil
}

// Close implements Client.
func (m *MockClient) Close() error { return nil }

func (m *MockClient) freeform(req *Request) string {
	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == RoleUser {
			lastUser = msg.Content
		}
	}
	lastUser = strings.TrimSpace(lastUser)
	if len(lastUser) > 160 {
		lastUser = lastUser[:160] + "…"
	}
	return fmt.Sprintf(
		"[%s] Here is a summary based on the information gathered.\n\n%s",
		m.model, lastUser,
	)
}

// valueFromSchema fills an object schema with deterministic placeholders:
// enums take their first value, strings a fixed token, numbers zero. Only
// required fields are populated, mirroring a well-behaved backend.
func valueFromSchema(schemaDoc json.RawMessage) (map[string]any, error) {
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(schemaDoc, &doc); err != nil {
		return nil, fmt.Errorf("mock cannot parse schema: %w", err)
	}
	out := make(map[string]any, len(doc.Required))
	for _, name := range doc.Required {
		raw, ok := doc.Properties[name]
		if !ok {
			continue
		}
		var prop struct {
			Type string   `json:"type"`
			Enum []string `json:"enum"`
		}
		if err := json.Unmarshal(raw, &prop); err != nil {
			return nil, fmt.Errorf("mock cannot parse property %s: %w", name, err)
		}
		out[name] = placeholderFor(name, prop.Type, prop.Enum)
	}
	return out, nil
}

func placeholderFor(name, typ string, enum []string) any {
	if len(enum) > 0 {
		return enum[0]
	}
	switch typ {
	case "integer", "number":
		return 0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return "mock " + name
	}
}

// ScriptedClient replays a fixed sequence of responses and records every
// request it sees. Intended for tests that drive the orchestrator through
// specific conversations.
type ScriptedClient struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []*Request
}

type scriptedStep struct {
	response *Response
	err      error
}

// NewScriptedClient creates an empty script.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{}
}

// EnqueueText appends a successful text response to the script.
func (s *ScriptedClient) EnqueueText(content string) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptedStep{response: &Response{Content: content}})
	return s
}

// EnqueueError appends a failure to the script.
func (s *ScriptedClient) EnqueueError(err error) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptedStep{err: err})
	return s
}

// GenerateContent implements Client by consuming the next scripted step.
func (s *ScriptedClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, NewErrorWithCode(ErrCodeUnknown, "scripted client exhausted", "mock", nil)
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.response, nil
}

// Close implements Client.
func (s *ScriptedClient) Close() error { return nil }

// Requests returns every request seen so far, in order.
func (s *ScriptedClient) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request(nil), s.requests...)
}

// CallCount reports how many generation calls were made.
func (s *ScriptedClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
