package llmadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/roundslab/rounds/engine/core"
)

// modelBuilder lets tests intercept model construction.
type modelBuilder func(p *core.ProviderConfig, responseFormat *openai.ResponseFormat) (llms.Model, error)

// LangChainAdapter implements Client over langchaingo models. Models for
// structured-output requests are built per call because the response format
// is a construction-time option on OpenAI-compatible clients; the free-form
// model is built once and reused.
type LangChainAdapter struct {
	provider   core.ProviderConfig
	buildModel modelBuilder
	plainModel llms.Model
	parser     *ErrorParser
}

// NewLangChainAdapter creates an adapter for the configured provider.
func NewLangChainAdapter(_ context.Context, config *core.ProviderConfig) (*LangChainAdapter, error) {
	if config == nil {
		return nil, fmt.Errorf("provider config must not be nil")
	}
	a := &LangChainAdapter{
		provider:   *config,
		buildModel: createModel,
		parser:     NewErrorParser(string(config.Provider)),
	}
	model, err := a.buildModel(&a.provider, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation model: %w", err)
	}
	a.plainModel = model
	return a, nil
}

// GenerateContent implements Client.
func (a *LangChainAdapter) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCode(ErrCodeBadRequest, err.Error(), string(a.provider.Provider), err)
	}
	model, err := a.modelFor(req)
	if err != nil {
		return nil, a.classify(err)
	}
	messages := convertMessages(req)
	options := buildCallOptions(req)
	response, err := model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, a.classify(err)
	}
	return convertResponse(response, string(a.provider.Provider))
}

// Close implements Client. Langchaingo models hold no resources needing
// explicit teardown.
func (a *LangChainAdapter) Close() error {
	return nil
}

func (a *LangChainAdapter) modelFor(req *Request) (llms.Model, error) {
	if req.Output == nil {
		return a.plainModel, nil
	}
	format, err := buildResponseFormat(req.Output)
	if err != nil {
		return nil, err
	}
	return a.buildModel(&a.provider, format)
}

func (a *LangChainAdapter) classify(err error) error {
	if parsed := a.parser.ParseError(err); parsed != nil {
		return parsed
	}
	return NewErrorWithCode(ErrCodeUnknown, err.Error(), string(a.provider.Provider), err)
}

func convertMessages(req *Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, msg := range req.Messages {
		messages = append(messages, llms.TextParts(mapRole(msg.Role), msg.Content))
	}
	return messages
}

func mapRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func buildCallOptions(req *Request) []llms.CallOption {
	var options []llms.CallOption
	if req.Params.Temperature != nil {
		options = append(options, llms.WithTemperature(*req.Params.Temperature))
	}
	if req.Params.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(int(req.Params.MaxTokens)))
	}
	if req.Params.TopP > 0 {
		options = append(options, llms.WithTopP(req.Params.TopP))
	}
	if req.Params.Seed != 0 {
		options = append(options, llms.WithSeed(req.Params.Seed))
	}
	if len(req.Params.StopWords) > 0 {
		options = append(options, llms.WithStopWords(req.Params.StopWords))
	}
	return options
}

func convertResponse(resp *llms.ContentResponse, provider string) (*Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, NewErrorWithCode(ErrCodeEmptyResponse, "provider returned no choices", provider, nil)
	}
	choice := resp.Choices[0]
	out := &Response{Content: choice.Content}
	if strings.TrimSpace(out.Content) == "" {
		return nil, NewErrorWithCode(ErrCodeEmptyResponse, "provider returned empty content", provider, nil)
	}
	if choice.GenerationInfo != nil {
		out.Usage = usageFromInfo(choice.GenerationInfo)
	}
	return out, nil
}

func usageFromInfo(info map[string]any) *Usage {
	usage := &Usage{}
	found := false
	if v, ok := intFromInfo(info, "PromptTokens", "prompt_tokens"); ok {
		usage.PromptTokens = v
		found = true
	}
	if v, ok := intFromInfo(info, "CompletionTokens", "completion_tokens"); ok {
		usage.CompletionTokens = v
		found = true
	}
	if v, ok := intFromInfo(info, "TotalTokens", "total_tokens"); ok {
		usage.TotalTokens = v
		found = true
	}
	if !found {
		return nil
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intFromInfo(info map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		raw, ok := info[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		}
	}
	return 0, false
}
