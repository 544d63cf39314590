// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"fmt"

	"github.com/loomrun/loom/pkg/registry"
)

// ProviderType names a compile-time-registered chat-model backend.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGemini    ProviderType = "gemini"
)

// ProviderConfig is the provider-agnostic configuration loaded from the
// koanf-backed provider catalog.
type ProviderConfig struct {
	Type        ProviderType `mapstructure:"type"`
	APIKey      string       `mapstructure:"api_key"`
	BaseURL     string       `mapstructure:"base_url"`
	Model       string       `mapstructure:"model"`
	Temperature float32      `mapstructure:"temperature"`
	MaxTokens   int          `mapstructure:"max_tokens"`
}

// NewProvider builds a ChatModel from cfg. New provider types are added
// here at compile time rather than resolved dynamically from a string
// naming an importable class, per the REDESIGN FLAGS decision to keep
// every reachable backend statically linked.
func NewProvider(ctx context.Context, cfg ProviderConfig) (ChatModel, error) {
	switch cfg.Type {
	case ProviderOpenAI:
		return NewOpenAIModel(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}), nil
	case ProviderAnthropic:
		return NewAnthropicModel(AnthropicConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: int64(cfg.MaxTokens),
		}), nil
	case ProviderGemini:
		return NewGeminiModel(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("llm: unknown provider type %q", cfg.Type)
	}
}

// Registry tracks named, already-constructed ChatModel instances, looked
// up by alias.
type Registry struct {
	base *registry.BaseRegistry[ChatModel]
}

func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[ChatModel]()}
}

func (r *Registry) Register(name string, m ChatModel) error { return r.base.Register(name, m) }
func (r *Registry) Get(name string) (ChatModel, bool)        { return r.base.Get(name) }
func (r *Registry) List() []string                           { return r.base.Keys() }
