// Package config provides typed, validated configuration for the engine and
// CLI. Values are layered default < YAML file < environment (ROUNDS_*), the
// merged result is immutable once loaded, and consumers read it through
// config.FromContext. Ceilings and timeouts consumed by the orchestrator are
// copied into its settings at construction and never re-read mid-turn.
package config

import "time"

// Config is the root configuration for a rounds process.
type Config struct {
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
	LLM        LLMConfig        `koanf:"llm"        validate:"required"`
	Limits     LimitsConfig     `koanf:"limits"     validate:"required"`
	Generation GenerationConfig `koanf:"generation" validate:"required"`
	Patterns   PatternsConfig   `koanf:"patterns"`
	Transcript TranscriptConfig `koanf:"transcript"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Tools      ToolsConfig      `koanf:"tools"`
}

// RuntimeConfig contains process-level behavior.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error disabled"`
	LogJSON     bool   `koanf:"log_json"`
	LogSource   bool   `koanf:"log_source"`
}

// LLMConfig selects and authenticates the generation backend.
type LLMConfig struct {
	Provider  string          `koanf:"provider" validate:"oneof=openai anthropic groq ollama mock"`
	Model     string          `koanf:"model"`
	APIKey    SensitiveString `koanf:"api_key"  sensitive:"true"`
	APIURL    string          `koanf:"api_url"  validate:"omitempty,url"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	// Overrides is a free-form provider-config fragment merged over the
	// fields above, for backend knobs that have no dedicated key
	// (model swaps per environment, default generation params).
	Overrides map[string]any `koanf:"overrides"`
}

// RateLimitConfig throttles outbound generation calls per provider.
type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	Concurrency       int64   `koanf:"concurrency"         validate:"min=0"`
	RequestsPerMinute float64 `koanf:"requests_per_minute" validate:"min=0"`
	Burst             int     `koanf:"burst"               validate:"min=0"`
}

// LimitsConfig holds the turn ceilings. These are read once at orchestrator
// construction; changing them has no effect on turns already in flight.
type LimitsConfig struct {
	MaxSteps          int           `koanf:"max_steps"           validate:"min=1"`
	MaxRetriesPerTool int           `koanf:"max_retries_per_tool" validate:"min=0"`
	MaxTotalRetries   int           `koanf:"max_total_retries"   validate:"min=0"`
	ToolTimeout       time.Duration `koanf:"tool_timeout"        validate:"min=1ms"`
	GenerationTimeout time.Duration `koanf:"generation_timeout"  validate:"min=1ms"`
	HistoryWindow     int           `koanf:"history_window"      validate:"min=0"`
	PromptTokenBudget int           `koanf:"prompt_token_budget" validate:"min=256"`
}

// GenerationConfig tunes the per-node call policy.
type GenerationConfig struct {
	ClassifyMaxTokens    int32   `koanf:"classify_max_tokens"   validate:"min=16"`
	ClassifyTemperature  float64 `koanf:"classify_temperature"  validate:"min=0,max=2"`
	SynthesisMaxTokens   int32   `koanf:"synthesis_max_tokens"  validate:"min=64"`
	SynthesisTemperature float64 `koanf:"synthesis_temperature" validate:"min=0,max=2"`
	TokenEncoding        string  `koanf:"token_encoding"`
}

// PatternsConfig points at task-pattern table overrides.
type PatternsConfig struct {
	Paths []string `koanf:"paths"`
	Watch bool     `koanf:"watch"`
}

// TranscriptConfig selects the turn transcript store.
type TranscriptConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory sqlite"`
	Path   string `koanf:"path"`
}

// MonitoringConfig controls the optional Prometheus listener.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path" validate:"omitempty,startswith=/"`
}

// ToolsConfig configures the bundled reference tools.
type ToolsConfig struct {
	LiteratureBaseURL string `koanf:"literature_base_url" validate:"omitempty,url"`
}

// Default returns the built-in configuration. The numeric ceilings were
// tuned against the mock provider and small hosted models; deployments
// targeting a different backend should re-derive them.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		LLM: LLMConfig{
			Provider: "mock",
			RateLimit: RateLimitConfig{
				Concurrency:       4,
				RequestsPerMinute: 120,
				Burst:             8,
			},
		},
		Limits: LimitsConfig{
			MaxSteps:          6,
			MaxRetriesPerTool: 2,
			MaxTotalRetries:   4,
			ToolTimeout:       10 * time.Second,
			GenerationTimeout: 30 * time.Second,
			HistoryWindow:     3,
			PromptTokenBudget: 3000,
		},
		Generation: GenerationConfig{
			ClassifyMaxTokens:    256,
			ClassifyTemperature:  0,
			SynthesisMaxTokens:   700,
			SynthesisTemperature: 0.7,
			TokenEncoding:        "cl100k_base",
		},
		Patterns: PatternsConfig{},
		Transcript: TranscriptConfig{
			Driver: "memory",
			Path:   "rounds.db",
		},
		Monitoring: MonitoringConfig{
			Addr: ":9464",
			Path: "/metrics",
		},
	}
}
