// Package llmadapter isolates the engine from generation-backend SDKs. The
// neutral Request/Response types carry everything a call site needs; concrete
// providers are reached through langchaingo and selected by configuration.
package llmadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roundslab/rounds/engine/core"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry, provider-independent.
type Message struct {
	Role    string
	Content string
}

// StructuredOutput asks the backend for a value conforming to a schema.
// Schema is the serialized JSON-schema document with properties in contract
// order; providers with native enforcement receive it verbatim.
type StructuredOutput struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Strict      bool
}

// Request is a single generation call. A nil Output means free-form text.
type Request struct {
	System   string
	Messages []Message
	Params   core.PromptParams
	Output   *StructuredOutput
}

// Usage reports token consumption when the provider surfaces it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the backend's answer as neutral data.
type Response struct {
	Content string
	Usage   *Usage
}

// Client is the surface the Generation Client builds on.
type Client interface {
	GenerateContent(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// Factory creates Clients from provider configuration.
type Factory interface {
	CreateClient(ctx context.Context, config *core.ProviderConfig) (Client, error)
}

// DefaultFactory dispatches on the configured provider name.
type DefaultFactory struct{}

// NewDefaultFactory returns the standard factory.
func NewDefaultFactory() Factory {
	return &DefaultFactory{}
}

// CreateClient implements Factory.
func (f *DefaultFactory) CreateClient(ctx context.Context, config *core.ProviderConfig) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("provider config must not be nil")
	}
	switch config.Provider {
	case core.ProviderOpenAI, core.ProviderAnthropic, core.ProviderGroq, core.ProviderOllama:
		return NewLangChainAdapter(ctx, config)
	case core.ProviderMock:
		return NewMockClient(config.Model), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", config.Provider)
	}
}

// Validate checks the request shape before any provider work happens.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("request must not be nil")
	}
	if len(r.Messages) == 0 && r.System == "" {
		return fmt.Errorf("request carries no messages")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("message[%d] has unknown role %q", i, m.Role)
		}
	}
	if r.Output != nil {
		if r.Output.Name == "" {
			return fmt.Errorf("structured output requires a name")
		}
		if len(r.Output.Schema) == 0 {
			return fmt.Errorf("structured output %s carries no schema", r.Output.Name)
		}
	}
	return nil
}
