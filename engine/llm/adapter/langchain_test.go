package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/roundslab/rounds/engine/core"
)

type capturingModel struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	response *llms.ContentResponse
	err      error
}

func (m *capturingModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.response != nil {
		return m.response, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: `{"ok":true}`}},
	}, nil
}

func (m *capturingModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

func testAdapter(model llms.Model) (*LangChainAdapter, *[]*openai.ResponseFormat) {
	formats := make([]*openai.ResponseFormat, 0, 2)
	adapter := &LangChainAdapter{
		provider: core.ProviderConfig{Provider: core.ProviderOpenAI, Model: "gpt-4o-mini"},
		buildModel: func(_ *core.ProviderConfig, format *openai.ResponseFormat) (llms.Model, error) {
			formats = append(formats, format)
			return model, nil
		},
		plainModel: model,
		parser:     NewErrorParser("openai"),
	}
	return adapter, &formats
}

func TestLangChainAdapter_GenerateContent(t *testing.T) {
	t.Run("Should convert system prompt and message roles", func(t *testing.T) {
		model := &capturingModel{}
		adapter, _ := testAdapter(model)
		_, err := adapter.GenerateContent(context.Background(), &Request{
			System: "You are terse.",
			Messages: []Message{
				{Role: RoleUser, Content: "hello"},
				{Role: RoleAssistant, Content: "hi"},
				{Role: RoleUser, Content: "again"},
			},
		})
		require.NoError(t, err)
		require.Len(t, model.messages, 4)
		assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
		assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[3].Role)
	})

	t.Run("Should apply generation params as call options", func(t *testing.T) {
		model := &capturingModel{}
		adapter, _ := testAdapter(model)
		_, err := adapter.GenerateContent(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "hello"}},
			Params: core.PromptParams{
				Temperature: core.Ptr(0.2),
				MaxTokens:   256,
				TopP:        0.9,
				Seed:        7,
				StopWords:   []string{"END"},
			},
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.2, model.options.Temperature, 1e-9)
		assert.Equal(t, 256, model.options.MaxTokens)
		assert.InDelta(t, 0.9, model.options.TopP, 1e-9)
		assert.Equal(t, 7, model.options.Seed)
		assert.Equal(t, []string{"END"}, model.options.StopWords)
	})

	t.Run("Should pass an explicit zero temperature to the model", func(t *testing.T) {
		opts := llms.CallOptions{Temperature: 0.9}
		options := buildCallOptions(&Request{Params: core.PromptParams{
			MaxTokens:   256,
			Temperature: core.Ptr(0.0),
		}})
		require.Len(t, options, 2)
		for _, apply := range options {
			apply(&opts)
		}
		assert.Zero(t, opts.Temperature)
	})

	t.Run("Should leave temperature at the provider default when unset", func(t *testing.T) {
		opts := llms.CallOptions{Temperature: 0.9}
		for _, apply := range buildCallOptions(&Request{Params: core.PromptParams{MaxTokens: 256}}) {
			apply(&opts)
		}
		assert.InDelta(t, 0.9, opts.Temperature, 1e-9)
	})

	t.Run("Should build json_schema response format for structured requests", func(t *testing.T) {
		model := &capturingModel{}
		adapter, formats := testAdapter(model)
		schemaDoc := json.RawMessage(`{
			"type": "object",
			"properties": {"intent": {"type": "string", "enum": ["direct", "tool_needed"]}},
			"required": ["intent"],
			"additionalProperties": false
		}`)
		_, err := adapter.GenerateContent(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "classify"}},
			Output: &StructuredOutput{
				Name:   "intent_decision",
				Schema: schemaDoc,
				Strict: true,
			},
		})
		require.NoError(t, err)
		require.Len(t, *formats, 1)
		format := (*formats)[0]
		require.NotNil(t, format)
		assert.Equal(t, "json_schema", format.Type)
		require.NotNil(t, format.JSONSchema)
		assert.Equal(t, "intent_decision", format.JSONSchema.Name)
		assert.True(t, format.JSONSchema.Strict)
		require.NotNil(t, format.JSONSchema.Schema)
		assert.Equal(t, "object", format.JSONSchema.Schema.Type)
		assert.Contains(t, format.JSONSchema.Schema.Properties, "intent")
	})

	t.Run("Should use the plain model for free-form requests", func(t *testing.T) {
		model := &capturingModel{}
		adapter, formats := testAdapter(model)
		_, err := adapter.GenerateContent(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "summarize"}},
		})
		require.NoError(t, err)
		assert.Empty(t, *formats, "free-form calls must not rebuild the model")
	})

	t.Run("Should classify empty responses", func(t *testing.T) {
		model := &capturingModel{response: &llms.ContentResponse{}}
		adapter, _ := testAdapter(model)
		_, err := adapter.GenerateContent(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "hello"}},
		})
		require.Error(t, err)
		llmErr, ok := IsLLMError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeEmptyResponse, llmErr.Code)
	})

	t.Run("Should classify provider failures through the parser", func(t *testing.T) {
		model := &capturingModel{err: errors.New("API returned status code: 429 Too Many Requests")}
		adapter, _ := testAdapter(model)
		_, err := adapter.GenerateContent(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "hello"}},
		})
		require.Error(t, err)
		llmErr, ok := IsLLMError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeRateLimit, llmErr.Code)
		assert.True(t, llmErr.Retryable())
	})

	t.Run("Should wrap unrecognized failures as unknown", func(t *testing.T) {
		model := &capturingModel{err: errors.New("something odd happened")}
		adapter, _ := testAdapter(model)
		_, err := adapter.GenerateContent(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "hello"}},
		})
		require.Error(t, err)
		llmErr, ok := IsLLMError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeUnknown, llmErr.Code)
		assert.False(t, llmErr.Retryable())
	})

	t.Run("Should extract usage from generation info", func(t *testing.T) {
		model := &capturingModel{response: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{
				Content: "done",
				GenerationInfo: map[string]any{
					"PromptTokens":     120,
					"CompletionTokens": 30,
				},
			}},
		}}
		adapter, _ := testAdapter(model)
		resp, err := adapter.GenerateContent(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "hello"}},
		})
		require.NoError(t, err)
		require.NotNil(t, resp.Usage)
		assert.Equal(t, 120, resp.Usage.PromptTokens)
		assert.Equal(t, 30, resp.Usage.CompletionTokens)
		assert.Equal(t, 150, resp.Usage.TotalTokens)
	})

	t.Run("Should reject invalid requests before any provider call", func(t *testing.T) {
		model := &capturingModel{}
		adapter, _ := testAdapter(model)
		_, err := adapter.GenerateContent(context.Background(), &Request{})
		require.Error(t, err)
		llmErr, ok := IsLLMError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeBadRequest, llmErr.Code)
		assert.Nil(t, model.messages)
	})
}

func TestRequest_Validate(t *testing.T) {
	t.Run("Should accept a minimal user message", func(t *testing.T) {
		req := &Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
		assert.NoError(t, req.Validate())
	})

	t.Run("Should reject unknown roles", func(t *testing.T) {
		req := &Request{Messages: []Message{{Role: "tool", Content: "x"}}}
		err := req.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown role")
	})

	t.Run("Should reject structured output without a schema", func(t *testing.T) {
		req := &Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
			Output:   &StructuredOutput{Name: "thing"},
		}
		err := req.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema")
	})
}

func TestDefaultFactory_CreateClient(t *testing.T) {
	t.Run("Should create a mock client for the mock provider", func(t *testing.T) {
		factory := NewDefaultFactory()
		client, err := factory.CreateClient(context.Background(), &core.ProviderConfig{
			Provider: core.ProviderMock,
			Model:    "mock-1",
		})
		require.NoError(t, err)
		_, ok := client.(*MockClient)
		assert.True(t, ok)
	})

	t.Run("Should reject unsupported providers", func(t *testing.T) {
		factory := NewDefaultFactory()
		_, err := factory.CreateClient(context.Background(), &core.ProviderConfig{
			Provider: "cohere",
			Model:    "command",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported generation provider")
	})

	t.Run("Should reject nil config", func(t *testing.T) {
		factory := NewDefaultFactory()
		_, err := factory.CreateClient(context.Background(), nil)
		require.Error(t, err)
	})
}
