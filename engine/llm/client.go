// Package llm is the Generation Client: the single place the engine talks
// to a generation backend. It layers provider rate limiting, a per-call
// timeout, and transport backoff over the adapter, and enforces the
// structured-output discipline for constrained calls (validate against the
// registered contract, retry the identical request once, then fail typed).
package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/roundslab/rounds/engine/core"
	llmadapter "github.com/roundslab/rounds/engine/llm/adapter"
	"github.com/roundslab/rounds/engine/schema"
	"github.com/roundslab/rounds/pkg/config"
	"github.com/roundslab/rounds/pkg/logger"
)

const (
	defaultRetryAttempts = 2
	defaultBackoffBase   = 200 * time.Millisecond
	defaultBackoffMax    = 5 * time.Second
	defaultJitter        = 50 * time.Millisecond
)

// TextRequest is a free-form generation call.
type TextRequest struct {
	System   string
	Messages []llmadapter.Message
	Params   core.PromptParams
}

// ObjectRequest is a constrained call against a registered contract. The
// response must validate against the contract before it is decoded.
type ObjectRequest struct {
	System   string
	Messages []llmadapter.Message
	Params   core.PromptParams
	Contract string
}

// Client wraps an adapter client with the engine's call policy.
type Client struct {
	backend  llmadapter.Client
	provider core.ProviderConfig
	registry *schema.Registry
	limiter  *llmadapter.RateLimiter

	timeout       time.Duration
	retryAttempts uint64
	backoffBase   time.Duration
	backoffMax    time.Duration
	jitter        time.Duration
}

// NewClient builds the Generation Client from configuration. The adapter
// backend is created through the default factory unless overridden with
// WithBackend.
func NewClient(ctx context.Context, cfg *config.Config, registry *schema.Registry, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, core.NewError(nil, "INVALID_CONFIG", map[string]any{"reason": "nil config"})
	}
	if registry == nil {
		return nil, core.NewError(nil, "INVALID_CONFIG", map[string]any{"reason": "nil schema registry"})
	}
	provider := core.ProviderConfig{
		Provider: core.ProviderName(cfg.LLM.Provider),
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey.Value(),
		APIURL:   cfg.LLM.APIURL,
	}
	if len(cfg.LLM.Overrides) > 0 {
		if err := provider.FromMap(cfg.LLM.Overrides); err != nil {
			return nil, core.NewError(err, "INVALID_PROVIDER_OVERRIDES", map[string]any{
				"provider": cfg.LLM.Provider,
			})
		}
	}
	c := &Client{
		provider: provider,
		registry: registry,
		limiter: llmadapter.NewRateLimiter(llmadapter.RateLimiterConfig{
			Enabled:           cfg.LLM.RateLimit.Enabled,
			Concurrency:       cfg.LLM.RateLimit.Concurrency,
			RequestsPerMinute: cfg.LLM.RateLimit.RequestsPerMinute,
			Burst:             cfg.LLM.RateLimit.Burst,
		}),
		timeout:       cfg.Limits.GenerationTimeout,
		retryAttempts: defaultRetryAttempts,
		backoffBase:   defaultBackoffBase,
		backoffMax:    defaultBackoffMax,
		jitter:        defaultJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		backend, err := llmadapter.NewDefaultFactory().CreateClient(ctx, &provider)
		if err != nil {
			return nil, core.NewError(err, "PROVIDER_INIT_FAILED", map[string]any{
				"provider": cfg.LLM.Provider,
			})
		}
		c.backend = backend
	}
	return c, nil
}

// Option adjusts client construction.
type Option func(*Client)

// WithBackend substitutes the adapter client; tests and the REPL use this
// to inject scripted or shared backends.
func WithBackend(backend llmadapter.Client) Option {
	return func(c *Client) { c.backend = backend }
}

// Close releases the underlying backend.
func (c *Client) Close() error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

// Provider reports the configured backend name.
func (c *Client) Provider() core.ProviderName {
	return c.provider.Provider
}

// GenerateText performs a free-form call and returns the raw text.
func (c *Client) GenerateText(ctx context.Context, req *TextRequest) (string, error) {
	resp, err := c.invoke(ctx, &llmadapter.Request{
		System:   req.System,
		Messages: req.Messages,
		Params:   req.Params,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GenerateObject performs a constrained call and decodes the validated
// response into out. A response that fails the contract triggers exactly
// one identical-request retry; a second failure returns a *ContractError.
func (c *Client) GenerateObject(ctx context.Context, req *ObjectRequest, out any) error {
	contract, err := c.registry.Get(req.Contract)
	if err != nil {
		return err
	}
	schemaJSON, err := contract.SchemaJSON()
	if err != nil {
		return err
	}
	call := &llmadapter.Request{
		System:   req.System,
		Messages: req.Messages,
		Params:   req.Params,
		Output: &llmadapter.StructuredOutput{
			Name:        contract.Name,
			Description: contract.Description,
			Schema:      schemaJSON,
			Strict:      contract.Strict,
		},
	}
	log := logger.FromContext(ctx)
	var lastContent string
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.invoke(ctx, call)
		if err != nil {
			return err
		}
		lastContent = resp.Content
		decodeErr := c.decodeValidated(ctx, contract.Name, resp.Content, out)
		if decodeErr == nil {
			return nil
		}
		lastErr = decodeErr
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("structured output failed contract, retrying identical request",
			"contract", contract.Name, "attempt", attempt+1, "error", core.RedactError(decodeErr))
	}
	return &ContractError{Contract: contract.Name, Content: lastContent, Err: lastErr}
}

// decodeValidated extracts the first JSON value from content, validates it
// against the named contract, and decodes it into out.
func (c *Client) decodeValidated(ctx context.Context, contract, content string, out any) error {
	snippet, ok := extractJSONValue(content)
	if !ok {
		return core.NewError(nil, "MALFORMED_OUTPUT", map[string]any{"contract": contract})
	}
	var value map[string]any
	if err := json.Unmarshal([]byte(snippet), &value); err != nil {
		return core.NewError(err, "MALFORMED_OUTPUT", map[string]any{"contract": contract})
	}
	if err := c.registry.ValidateValue(ctx, contract, value); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(snippet), out); err != nil {
		return core.NewError(err, "MALFORMED_OUTPUT", map[string]any{"contract": contract})
	}
	return nil
}

// invoke runs one adapter call under the rate limiter, per-call timeout,
// and transport backoff. Contract handling happens above this layer.
func (c *Client) invoke(ctx context.Context, req *llmadapter.Request) (*llmadapter.Response, error) {
	if err := c.limiter.Acquire(ctx, c.provider.Provider); err != nil {
		return nil, err
	}
	defer c.limiter.Release(c.provider.Provider)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	backoff := retry.NewExponential(c.backoffBase)
	backoff = retry.WithMaxDuration(c.backoffMax, backoff)
	if c.jitter > 0 {
		backoff = retry.WithJitter(c.jitter, backoff)
	}
	backoff = retry.WithMaxRetries(c.retryAttempts, backoff)

	var resp *llmadapter.Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.backend.GenerateContent(ctx, req)
		if callErr != nil {
			if isRetryableTransport(ctx, callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		return nil, core.NewError(err, "GENERATION_FAILED", map[string]any{
			"provider": string(c.provider.Provider),
		})
	}
	return resp, nil
}
