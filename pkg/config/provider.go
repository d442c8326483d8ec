package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// SourceType identifies where a configuration value came from.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
)

// Source supplies one layer of configuration as a nested map.
type Source interface {
	Type() SourceType
	Load() (map[string]any, error)
}

type yamlProvider struct {
	path     string
	optional bool
}

// NewYAMLProvider reads a YAML configuration file. Loading fails if the
// file is missing.
func NewYAMLProvider(path string) Source {
	return &yamlProvider{path: path}
}

// NewOptionalYAMLProvider behaves like NewYAMLProvider but yields an empty
// layer when the file does not exist.
func NewOptionalYAMLProvider(path string) Source {
	return &yamlProvider{path: path, optional: true}
}

func (p *yamlProvider) Type() SourceType { return SourceYAML }

// Path returns the watched file path, used by the Manager for hot reload.
func (p *yamlProvider) Path() string { return p.path }

func (p *yamlProvider) Load() (map[string]any, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if p.optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", p.path, err)
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", p.path, err)
	}
	return out, nil
}

type envProvider struct{}

// NewEnvProvider marks the environment layer. The loader applies it last so
// ROUNDS_* variables win over file values.
func NewEnvProvider() Source { return envProvider{} }

func (envProvider) Type() SourceType { return SourceEnv }

func (envProvider) Load() (map[string]any, error) { return nil, nil }
