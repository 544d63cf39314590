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

package embedder

import (
	"fmt"

	"github.com/loomrun/loom/pkg/registry"
)

// ProviderType names a compile-time-registered embedder backend.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
)

// ProviderConfig is the provider-agnostic configuration loaded from the
// koanf-backed provider catalog (spec §6 "provider wiring").
type ProviderConfig struct {
	Type      ProviderType `mapstructure:"type"`
	APIKey    string       `mapstructure:"api_key"`
	BaseURL   string       `mapstructure:"base_url"`
	Model     string       `mapstructure:"model"`
	Dimension int          `mapstructure:"dimension"`
}

// NewProvider builds an Embedder from a ProviderConfig. Unlike the source
// this was distilled from, which dynamically imported a backend class named
// in configuration, new provider types are added here at compile time (spec
// REDESIGN FLAGS) so every reachable backend is statically linked and
// type-checked.
func NewProvider(cfg ProviderConfig) (Embedder, error) {
	switch cfg.Type {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}), nil
	default:
		return nil, fmt.Errorf("embedder: unknown provider type %q", cfg.Type)
	}
}

// Registry tracks named, already-constructed Embedder instances — one
// workspace may reference several (e.g. a cheap one for episodic summaries,
// a larger one for semantic recall).
type Registry struct {
	base *registry.BaseRegistry[Embedder]
}

// NewRegistry builds an empty embedder registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Embedder]()}
}

func (r *Registry) Register(name string, e Embedder) error { return r.base.Register(name, e) }
func (r *Registry) Get(name string) (Embedder, bool)        { return r.base.Get(name) }
func (r *Registry) List() []string                          { return r.base.Keys() }
