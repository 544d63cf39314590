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

package store

import (
	"fmt"
	"sync"

	"github.com/loomrun/loom/pkg/embedder"
)

// ProviderType identifies a Store backend.
type ProviderType string

const (
	ProviderMemory   ProviderType = "memory"
	ProviderChromem  ProviderType = "chromem"
	ProviderQdrant   ProviderType = "qdrant"
	ProviderPinecone ProviderType = "pinecone"
	ProviderRedis    ProviderType = "rediskv"
	ProviderPGVector ProviderType = "pgvector"
)

// ProviderConfig configures which Store backend a workspace's memory
// manager binds to (spec §6 "provider wiring").
type ProviderConfig struct {
	Type ProviderType

	Chromem  *ChromemConfig
	Qdrant   *QdrantConfig
	Pinecone *PineconeConfig
	Redis    *RedisConfig
	PGVector *PGVectorConfig
}

// NewProvider builds a Store for cfg. emb may be nil; every backend built
// without one rejects semantic puts and searches.
func NewProvider(cfg ProviderConfig, emb embedder.Embedder) (Store, error) {
	switch cfg.Type {
	case "", ProviderMemory:
		return NewMemoryStore(emb), nil
	case ProviderChromem:
		chromemCfg := ChromemConfig{}
		if cfg.Chromem != nil {
			chromemCfg = *cfg.Chromem
		}
		return NewChromemStore(chromemCfg, emb)
	case ProviderQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("store: qdrant configuration is required")
		}
		return NewQdrantStore(*cfg.Qdrant, emb)
	case ProviderPinecone:
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("store: pinecone configuration is required")
		}
		return NewPineconeStore(*cfg.Pinecone, emb)
	case ProviderRedis:
		redisCfg := RedisConfig{}
		if cfg.Redis != nil {
			redisCfg = *cfg.Redis
		}
		return NewRedisStore(redisCfg), nil
	case ProviderPGVector:
		if cfg.PGVector == nil {
			return nil, fmt.Errorf("store: pgvector configuration is required")
		}
		return NewPGVectorStore(*cfg.PGVector, emb)
	default:
		return nil, fmt.Errorf("store: unknown provider type %q", cfg.Type)
	}
}

// Registry manages named Store instances — a workspace may keep a fast
// rediskv store for episodic memory alongside a chromem store for
// semantic memory under distinct names.
type Registry struct {
	mu      sync.RWMutex
	backend map[string]Store
}

func NewRegistry() *Registry {
	return &Registry{backend: make(map[string]Store)}
}

func (r *Registry) Register(name string, s Store) error {
	if name == "" {
		return fmt.Errorf("store: registry name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backend[name]; exists {
		return fmt.Errorf("store: %q already registered", name)
	}
	r.backend[name] = s
	return nil
}

func (r *Registry) Get(name string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.backend[name]
	return s, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backend))
	for name := range r.backend {
		names = append(names, name)
	}
	return names
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, s := range r.backend {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("store: failed to close %q: %w", name, err)
		}
	}
	r.backend = make(map[string]Store)
	return firstErr
}
