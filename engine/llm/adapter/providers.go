package llmadapter

import (
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/roundslab/rounds/engine/core"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1"
)

// createModel builds the langchaingo model for a provider. responseFormat
// is only honored by OpenAI-compatible backends; Ollama degrades to plain
// JSON mode and Anthropic relies on the schema text already present in the
// prompt plus post-hoc validation.
func createModel(p *core.ProviderConfig, responseFormat *openai.ResponseFormat) (llms.Model, error) {
	switch p.Provider {
	case core.ProviderOpenAI:
		return createOpenAIModel(p, responseFormat)
	case core.ProviderGroq:
		return createGroqModel(p, responseFormat)
	case core.ProviderAnthropic:
		return createAnthropicModel(p)
	case core.ProviderOllama:
		return createOllamaModel(p, responseFormat)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", p.Provider)
	}
}

func createOpenAIModel(p *core.ProviderConfig, responseFormat *openai.ResponseFormat) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(p.Model)}
	if p.APIKey != "" {
		opts = append(opts, openai.WithToken(p.APIKey))
	}
	if p.APIURL != "" {
		opts = append(opts, openai.WithBaseURL(p.APIURL))
	}
	if responseFormat != nil {
		opts = append(opts, openai.WithResponseFormat(responseFormat))
	}
	return openai.New(opts...)
}

func createGroqModel(p *core.ProviderConfig, responseFormat *openai.ResponseFormat) (llms.Model, error) {
	baseURL := groqBaseURL
	if p.APIURL != "" {
		baseURL = p.APIURL
	}
	opts := []openai.Option{
		openai.WithModel(p.Model),
		openai.WithBaseURL(baseURL),
	}
	if p.APIKey != "" {
		opts = append(opts, openai.WithToken(p.APIKey))
	}
	if responseFormat != nil {
		opts = append(opts, openai.WithResponseFormat(responseFormat))
	}
	return openai.New(opts...)
}

func createAnthropicModel(p *core.ProviderConfig) (llms.Model, error) {
	opts := []anthropic.Option{anthropic.WithModel(p.Model)}
	if p.APIKey != "" {
		opts = append(opts, anthropic.WithToken(p.APIKey))
	}
	if p.APIURL != "" {
		opts = append(opts, anthropic.WithBaseURL(p.APIURL))
	}
	return anthropic.New(opts...)
}

func createOllamaModel(p *core.ProviderConfig, responseFormat *openai.ResponseFormat) (llms.Model, error) {
	opts := []ollama.Option{ollama.WithModel(p.Model)}
	if p.APIURL != "" {
		opts = append(opts, ollama.WithServerURL(p.APIURL))
	}
	if responseFormat != nil {
		opts = append(opts, ollama.WithFormat("json"))
	}
	return ollama.New(opts...)
}

// buildResponseFormat converts a StructuredOutput into the OpenAI
// json_schema response format. The schema document deserializes cleanly
// because contracts serialize to plain JSON-schema objects.
func buildResponseFormat(out *StructuredOutput) (*openai.ResponseFormat, error) {
	if out == nil {
		return nil, nil
	}
	var prop openai.ResponseFormatJSONSchemaProperty
	if err := json.Unmarshal(out.Schema, &prop); err != nil {
		return nil, fmt.Errorf("structured output %s: schema is not a valid schema document: %w", out.Name, err)
	}
	return &openai.ResponseFormat{
		Type: "json_schema",
		JSONSchema: &openai.ResponseFormatJSONSchema{
			Name:   out.Name,
			Strict: out.Strict,
			Schema: &prop,
		},
	}, nil
}
