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

package config

import (
	"github.com/loomrun/loom/pkg/embedder"
	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/llm"
	"github.com/loomrun/loom/pkg/store"
)

// ChatModelCatalog maps a provider alias (as referenced by workspace.json's
// chat_provider) to its chat-model ProviderConfig.
type ChatModelCatalog map[string]llm.ProviderConfig

// LoadChatModelCatalog reads path (a YAML file, spec §6 "a provider-config
// file for chatmodels") into a ChatModelCatalog.
func LoadChatModelCatalog(path string) (ChatModelCatalog, error) {
	entries, err := loadCatalog(path)
	if err != nil {
		return nil, err
	}
	out := make(ChatModelCatalog, len(entries))
	for alias, entry := range entries {
		var cfg llm.ProviderConfig
		if err := decodeInto(entry.Params, &cfg); err != nil {
			return nil, errs.Wrap(errs.KindConfig, "config", "failed to decode chat model entry "+alias, err)
		}
		cfg.Type = llm.ProviderType(entry.Type)
		out[alias] = cfg
	}
	return out, nil
}

// EmbeddingCatalog maps a provider alias to its embedder ProviderConfig.
type EmbeddingCatalog map[string]embedder.ProviderConfig

// LoadEmbeddingCatalog reads path (spec §6 "a provider-config file for
// embeddings") into an EmbeddingCatalog.
func LoadEmbeddingCatalog(path string) (EmbeddingCatalog, error) {
	entries, err := loadCatalog(path)
	if err != nil {
		return nil, err
	}
	out := make(EmbeddingCatalog, len(entries))
	for alias, entry := range entries {
		var cfg embedder.ProviderConfig
		if err := decodeInto(entry.Params, &cfg); err != nil {
			return nil, errs.Wrap(errs.KindConfig, "config", "failed to decode embedding entry "+alias, err)
		}
		cfg.Type = embedder.ProviderType(entry.Type)
		out[alias] = cfg
	}
	return out, nil
}

// StoreCatalog maps a provider alias to its store ProviderConfig. Unlike
// the other two catalogs, a store entry's args nest under one of several
// backend-specific sub-configs (store.ProviderConfig's Chromem/Qdrant/
// Pinecone/Redis/PGVector pointers), so each entry is decoded twice: once
// loosely to learn its type, then into the matching nested struct.
type StoreCatalog map[string]store.ProviderConfig

// LoadStoreCatalog reads path (spec §6 "a provider-config file for
// stores") into a StoreCatalog.
func LoadStoreCatalog(path string) (StoreCatalog, error) {
	entries, err := loadCatalog(path)
	if err != nil {
		return nil, err
	}
	out := make(StoreCatalog, len(entries))
	for alias, entry := range entries {
		cfg, err := decodeStoreEntry(entry)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "config", "failed to decode store entry "+alias, err)
		}
		out[alias] = cfg
	}
	return out, nil
}

func decodeStoreEntry(entry rawEntry) (store.ProviderConfig, error) {
	cfg := store.ProviderConfig{Type: store.ProviderType(entry.Type)}
	switch cfg.Type {
	case store.ProviderChromem:
		var c store.ChromemConfig
		if err := decodeInto(entry.Params, &c); err != nil {
			return cfg, err
		}
		cfg.Chromem = &c
	case store.ProviderQdrant:
		var c store.QdrantConfig
		if err := decodeInto(entry.Params, &c); err != nil {
			return cfg, err
		}
		cfg.Qdrant = &c
	case store.ProviderPinecone:
		var c store.PineconeConfig
		if err := decodeInto(entry.Params, &c); err != nil {
			return cfg, err
		}
		cfg.Pinecone = &c
	case store.ProviderRedis:
		var c store.RedisConfig
		if err := decodeInto(entry.Params, &c); err != nil {
			return cfg, err
		}
		cfg.Redis = &c
	case store.ProviderPGVector:
		var c store.PGVectorConfig
		if err := decodeInto(entry.Params, &c); err != nil {
			return cfg, err
		}
		cfg.PGVector = &c
	case "", store.ProviderMemory:
		// no nested config; NewProvider builds an in-process store.
	}
	return cfg, nil
}
