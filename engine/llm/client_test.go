package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundslab/rounds/engine/core"
	llmadapter "github.com/roundslab/rounds/engine/llm/adapter"
	"github.com/roundslab/rounds/engine/schema"
	"github.com/roundslab/rounds/pkg/config"
)

type intentDecision struct {
	Intent      string `json:"intent"`
	TaskSummary string `json:"task_summary"`
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry, err := schema.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, registry.Register(&schema.Contract{
		Name: "intent_classification",
		Fields: []schema.Field{
			{Name: "intent", Type: "string", Required: true, Enum: []string{"direct", "tool_needed"}},
			{Name: "task_summary", Type: "string", Required: true},
			{Name: "suggested_tool", Type: "string"},
		},
	}))
	return registry
}

func testClient(t *testing.T, backend llmadapter.Client) *Client {
	t.Helper()
	cfg := config.Default()
	client, err := NewClient(context.Background(), cfg, testRegistry(t), WithBackend(backend))
	require.NoError(t, err)
	// Keep retries fast and deterministic for tests.
	client.backoffBase = time.Millisecond
	client.backoffMax = 10 * time.Millisecond
	client.jitter = 0
	return client
}

func TestClient_GenerateObject(t *testing.T) {
	t.Run("Should decode a valid structured response", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().
			EnqueueText(`{"intent":"tool_needed","task_summary":"look up a patient"}`)
		client := testClient(t, backend)

		var out intentDecision
		err := client.GenerateObject(context.Background(), &ObjectRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "find Mr Okafor"}},
			Contract: "intent_classification",
		}, &out)
		require.NoError(t, err)
		assert.Equal(t, "tool_needed", out.Intent)
		assert.Equal(t, "look up a patient", out.TaskSummary)
		assert.Equal(t, 1, backend.CallCount())
	})

	t.Run("Should extract the object from surrounding prose", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().
			EnqueueText("Here you go:\n```json\n{\"intent\":\"direct\",\"task_summary\":\"greeting\"}\n```")
		client := testClient(t, backend)

		var out intentDecision
		err := client.GenerateObject(context.Background(), &ObjectRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
			Contract: "intent_classification",
		}, &out)
		require.NoError(t, err)
		assert.Equal(t, "direct", out.Intent)
	})

	t.Run("Should retry the identical request once on contract violation", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().
			EnqueueText(`{"intent":"maybe","task_summary":"x"}`).
			EnqueueText(`{"intent":"direct","task_summary":"greeting"}`)
		client := testClient(t, backend)

		var out intentDecision
		err := client.GenerateObject(context.Background(), &ObjectRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
			Contract: "intent_classification",
		}, &out)
		require.NoError(t, err)
		assert.Equal(t, "direct", out.Intent)
		require.Equal(t, 2, backend.CallCount())
		requests := backend.Requests()
		assert.Equal(t, requests[0].Messages, requests[1].Messages, "the retry must be byte-identical")
	})

	t.Run("Should fail typed after the second contract violation", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().
			EnqueueText(`not json at all`).
			EnqueueText(`{"intent":"nope","task_summary":"x"}`)
		client := testClient(t, backend)

		var out intentDecision
		err := client.GenerateObject(context.Background(), &ObjectRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
			Contract: "intent_classification",
		}, &out)
		require.Error(t, err)
		contractErr, ok := IsContractError(err)
		require.True(t, ok)
		assert.Equal(t, "intent_classification", contractErr.Contract)
		assert.Contains(t, contractErr.Content, "nope")
		assert.Equal(t, 2, backend.CallCount())
	})

	t.Run("Should reject unknown contracts without calling the backend", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient()
		client := testClient(t, backend)

		err := client.GenerateObject(context.Background(), &ObjectRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
			Contract: "no_such_contract",
		}, nil)
		require.Error(t, err)
		assert.Zero(t, backend.CallCount())
	})

	t.Run("Should send the ordered schema as structured output", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().
			EnqueueText(`{"intent":"direct","task_summary":"greeting"}`)
		client := testClient(t, backend)

		var out intentDecision
		require.NoError(t, client.GenerateObject(context.Background(), &ObjectRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
			Contract: "intent_classification",
		}, &out))
		requests := backend.Requests()
		require.Len(t, requests, 1)
		require.NotNil(t, requests[0].Output)
		assert.Equal(t, "intent_classification", requests[0].Output.Name)
		schemaText := string(requests[0].Output.Schema)
		assert.Less(t,
			strings.Index(schemaText, `"intent"`), strings.Index(schemaText, `"task_summary"`),
			"schema properties must keep contract order")
	})
}

func TestNewClient_Overrides(t *testing.T) {
	t.Run("Should merge provider overrides over the base config", func(t *testing.T) {
		cfg := config.Default()
		cfg.LLM.Overrides = map[string]any{
			"provider": "openai",
			"model":    "gpt-4o-mini",
			"params":   map[string]any{"temperature": 0.1},
		}
		client, err := NewClient(context.Background(), cfg, testRegistry(t),
			WithBackend(llmadapter.NewScriptedClient()))
		require.NoError(t, err)
		assert.Equal(t, core.ProviderOpenAI, client.Provider())
		assert.Equal(t, "gpt-4o-mini", client.provider.Model)
		require.NotNil(t, client.provider.Params.Temperature)
		assert.InDelta(t, 0.1, *client.provider.Params.Temperature, 1e-9)
	})

	t.Run("Should reject overrides that do not decode", func(t *testing.T) {
		cfg := config.Default()
		cfg.LLM.Overrides = map[string]any{"params": "not a map"}
		_, err := NewClient(context.Background(), cfg, testRegistry(t),
			WithBackend(llmadapter.NewScriptedClient()))
		require.Error(t, err)
	})
}

func TestClient_GenerateText(t *testing.T) {
	t.Run("Should return free-form content", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().EnqueueText("a plain answer")
		client := testClient(t, backend)

		text, err := client.GenerateText(context.Background(), &TextRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "a plain answer", text)
	})

	t.Run("Should retry transient transport failures with backoff", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().
			EnqueueError(llmadapter.NewError(http.StatusServiceUnavailable, "overloaded", "openai", nil)).
			EnqueueText("recovered")
		client := testClient(t, backend)

		text, err := client.GenerateText(context.Background(), &TextRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", text)
		assert.Equal(t, 2, backend.CallCount())
	})

	t.Run("Should not retry non-retryable failures", func(t *testing.T) {
		backend := llmadapter.NewScriptedClient().
			EnqueueError(llmadapter.NewError(http.StatusUnauthorized, "bad key", "openai", nil)).
			EnqueueText("never reached")
		client := testClient(t, backend)

		_, err := client.GenerateText(context.Background(), &TextRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
		})
		require.Error(t, err)
		assert.Equal(t, 1, backend.CallCount())
	})

	t.Run("Should stop on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		backend := llmadapter.NewScriptedClient().EnqueueText("unused")
		client := testClient(t, backend)

		_, err := client.GenerateText(ctx, &TextRequest{
			Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "hello"}},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestShouldRetryTransport(t *testing.T) {
	t.Run("Should not retry cancellation", func(t *testing.T) {
		assert.False(t, shouldRetryTransport(context.Canceled))
	})

	t.Run("Should retry deadline exceeded", func(t *testing.T) {
		assert.True(t, shouldRetryTransport(context.DeadlineExceeded))
	})

	t.Run("Should defer to the adapter classification", func(t *testing.T) {
		assert.True(t, shouldRetryTransport(
			llmadapter.NewErrorWithCode(llmadapter.ErrCodeRateLimit, "slow down", "openai", nil)))
		assert.False(t, shouldRetryTransport(
			llmadapter.NewErrorWithCode(llmadapter.ErrCodeContentPolicy, "rejected", "openai", nil)))
	})

	t.Run("Should catch transient phrasing in plain errors", func(t *testing.T) {
		assert.True(t, shouldRetryTransport(errors.New("service temporarily unavailable")))
		assert.False(t, shouldRetryTransport(errors.New("schema mismatch")))
	})
}

func TestExtractJSONValue(t *testing.T) {
	t.Run("Should find an object inside prose and fences", func(t *testing.T) {
		snippet, ok := extractJSONValue("sure: ```json\n{\"a\":1}\n``` done")
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, snippet)
	})

	t.Run("Should ignore braces inside strings", func(t *testing.T) {
		snippet, ok := extractJSONValue(`{"text":"a } inside","n":2}`)
		require.True(t, ok)
		assert.Equal(t, `{"text":"a } inside","n":2}`, snippet)
	})

	t.Run("Should handle escaped quotes", func(t *testing.T) {
		snippet, ok := extractJSONValue(`{"text":"say \"hi\" {now}"}`)
		require.True(t, ok)
		assert.Equal(t, `{"text":"say \"hi\" {now}"}`, snippet)
	})

	t.Run("Should report failure for unbalanced input", func(t *testing.T) {
		_, ok := extractJSONValue(`{"a": [1, 2}`)
		assert.False(t, ok)
		_, ok = extractJSONValue("no json here")
		assert.False(t, ok)
	})
}
