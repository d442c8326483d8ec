package core

import (
	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"
)

// ProviderName identifies a generation backend implementation.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGroq      ProviderName = "groq"
	ProviderOllama    ProviderName = "ollama"
	ProviderMock      ProviderName = "mock"
)

// PromptParams are the per-call generation knobs the engine tunes node by
// node. Unset values mean "provider default". Temperature is a pointer so
// an explicit 0 (the setting every decision node uses) is distinguishable
// from unset and reaches the provider.
type PromptParams struct {
	MaxTokens   int32    `json:"max_tokens,omitempty"  yaml:"max_tokens,omitempty"  mapstructure:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature,omitempty"`
	StopWords   []string `json:"stop_words,omitempty"  yaml:"stop_words,omitempty"  mapstructure:"stop_words,omitempty"`
	TopP        float64  `json:"top_p,omitempty"       yaml:"top_p,omitempty"       mapstructure:"top_p,omitempty"`
	Seed        int      `json:"seed,omitempty"        yaml:"seed,omitempty"        mapstructure:"seed,omitempty"`
}

// Ptr returns a pointer to v, for optional scalar fields.
func Ptr[T any](v T) *T { return &v }

// ProviderConfig selects and authenticates one generation backend.
type ProviderConfig struct {
	Provider ProviderName `json:"provider"          yaml:"provider"          mapstructure:"provider"`
	Model    string       `json:"model"             yaml:"model"             mapstructure:"model"`
	APIKey   string       `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIURL   string       `json:"api_url,omitempty" yaml:"api_url,omitempty" mapstructure:"api_url"`
	Params   PromptParams `json:"params,omitempty"  yaml:"params,omitempty"  mapstructure:"params"`
}

// NewProviderConfig builds the minimal config for a provider.
func NewProviderConfig(provider ProviderName, model, apiKey string) *ProviderConfig {
	return &ProviderConfig{Provider: provider, Model: model, APIKey: apiKey}
}

// FromMap merges normalized map data over the existing configuration.
func (p *ProviderConfig) FromMap(data any) error {
	var parsed ProviderConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &parsed,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(data); err != nil {
		return err
	}
	return mergo.Merge(p, parsed, mergo.WithOverride)
}
