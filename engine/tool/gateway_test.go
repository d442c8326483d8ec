package tool

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundslab/rounds/engine/schema"
)

func testGateway(t *testing.T, defs ...*Definition) *Gateway {
	t.Helper()
	registry, err := schema.NewRegistry()
	require.NoError(t, err)
	catalog := NewCatalog(registry)
	for _, def := range defs {
		require.NoError(t, catalog.Register(def))
	}
	renderer, err := NewRenderer()
	require.NoError(t, err)
	return NewGateway(catalog, renderer, time.Second)
}

func TestGateway_Invoke(t *testing.T) {
	t.Run("Should return invalid_args for an unregistered tool without calling anything", func(t *testing.T) {
		gateway := testGateway(t)
		result := gateway.Invoke(context.Background(), "missing_tool", map[string]any{})

		assert.Equal(t, OutcomeError, result.Outcome)
		assert.Equal(t, ErrorInvalidArgs, result.ErrorCategory)
		assert.NotContains(t, result.RenderedText, "missing_tool")
		assert.NotEmpty(t, result.CallID)
	})

	t.Run("Should reject missing required arguments before the handler runs", func(t *testing.T) {
		var calls atomic.Int32
		def := fixtureDefinition("demo_lookup")
		def.Handler = func(context.Context, map[string]any) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{"ok":true}`), nil
		}
		gateway := testGateway(t, def)

		result := gateway.Invoke(context.Background(), "demo_lookup", map[string]any{"ward": "b2"})

		assert.Equal(t, OutcomeError, result.Outcome)
		assert.Equal(t, ErrorInvalidArgs, result.ErrorCategory)
		assert.Contains(t, result.RenderedText, "(name)")
		assert.Zero(t, calls.Load(), "handler must not run on invalid args")
	})

	t.Run("Should reject unexpected arguments", func(t *testing.T) {
		gateway := testGateway(t, fixtureDefinition("demo_lookup"))
		result := gateway.Invoke(context.Background(), "demo_lookup",
			map[string]any{"name": "okafor", "surprise": true})

		assert.Equal(t, OutcomeError, result.Outcome)
		assert.Equal(t, ErrorInvalidArgs, result.ErrorCategory)
	})

	t.Run("Should render success through the formatter with the label", func(t *testing.T) {
		gateway := testGateway(t, fixtureDefinition("demo_lookup"))
		result := gateway.Invoke(context.Background(), "demo_lookup", map[string]any{"name": "okafor"})

		assert.Equal(t, OutcomeSuccess, result.Outcome)
		assert.Equal(t, "demo reference found one entry.", result.RenderedText)
		assert.NotContains(t, result.RenderedText, "demo_lookup")
		assert.JSONEq(t, `{"ok":true}`, string(result.RawPayload))
		assert.Positive(t, result.Duration)
	})

	t.Run("Should map a nil payload to the empty outcome", func(t *testing.T) {
		def := fixtureDefinition("demo_lookup")
		def.Handler = func(context.Context, map[string]any) (json.RawMessage, error) {
			return nil, nil
		}
		gateway := testGateway(t, def)

		result := gateway.Invoke(context.Background(), "demo_lookup", map[string]any{"name": "okafor"})

		assert.Equal(t, OutcomeEmpty, result.Outcome)
		assert.Contains(t, result.RenderedText, "no results")
	})

	t.Run("Should pass handler-declared categories through with candidates", func(t *testing.T) {
		def := fixtureDefinition("demo_lookup")
		def.Handler = func(context.Context, map[string]any) (json.RawMessage, error) {
			return nil, &CategoryError{
				Category:   ErrorAmbiguousMatch,
				Reason:     "three directory hits",
				Candidates: []string{"A. Okafor", "B. Okafor", "C. Okafor"},
			}
		}
		gateway := testGateway(t, def)

		result := gateway.Invoke(context.Background(), "demo_lookup", map[string]any{"name": "okafor"})

		assert.Equal(t, OutcomeError, result.Outcome)
		assert.Equal(t, ErrorAmbiguousMatch, result.ErrorCategory)
		assert.Equal(t, []string{"A. Okafor", "B. Okafor", "C. Okafor"}, result.Candidates)
		assert.Contains(t, result.RenderedText, "A. Okafor")
		assert.NotContains(t, result.RenderedText, "three directory hits",
			"internal reasons must never surface")
	})

	t.Run("Should map a slow handler to the timeout category", func(t *testing.T) {
		def := fixtureDefinition("slow_tool")
		def.Args.Name = "slow_tool_args"
		def.Timeout = 30 * time.Millisecond
		def.Handler = func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
			select {
			case <-time.After(500 * time.Millisecond):
				return json.RawMessage(`{"ok":true}`), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		gateway := testGateway(t, def)

		result := gateway.Invoke(context.Background(), "slow_tool", map[string]any{"name": "okafor"})

		assert.Equal(t, OutcomeError, result.Outcome)
		assert.Equal(t, ErrorTimeout, result.ErrorCategory)
		assert.Contains(t, result.RenderedText, "did not respond in time")
	})

	t.Run("Should map handler panics to server_error", func(t *testing.T) {
		def := fixtureDefinition("panicky_tool")
		def.Args.Name = "panicky_tool_args"
		def.Handler = func(context.Context, map[string]any) (json.RawMessage, error) {
			panic("boom")
		}
		gateway := testGateway(t, def)

		result := gateway.Invoke(context.Background(), "panicky_tool", map[string]any{"name": "okafor"})

		assert.Equal(t, OutcomeError, result.Outcome)
		assert.Equal(t, ErrorServerError, result.ErrorCategory)
		assert.NotContains(t, result.RenderedText, "boom")
	})

	t.Run("Should keep running after the caller context is canceled", func(t *testing.T) {
		started := make(chan struct{})
		def := fixtureDefinition("detached_tool")
		def.Args.Name = "detached_tool_args"
		def.Handler = func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
			close(started)
			select {
			case <-time.After(50 * time.Millisecond):
				return json.RawMessage(`{"done":true}`), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		gateway := testGateway(t, def)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()
		result := gateway.Invoke(ctx, "detached_tool", map[string]any{"name": "okafor"})

		assert.Equal(t, OutcomeSuccess, result.Outcome, "cancellation must not abort the call in flight")
	})

	t.Run("Should use the generic fallback when the formatter fails", func(t *testing.T) {
		def := fixtureDefinition("demo_lookup")
		def.Format = func(string, json.RawMessage) (string, error) {
			return "", assert.AnError
		}
		gateway := testGateway(t, def)

		result := gateway.Invoke(context.Background(), "demo_lookup", map[string]any{"name": "okafor"})

		assert.Equal(t, OutcomeSuccess, result.Outcome)
		assert.Contains(t, result.RenderedText, "could not be summarized")
	})
}
