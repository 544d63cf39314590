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
	"context"
	"math"
	"sort"
	"sync"

	"github.com/loomrun/loom/pkg/embedder"
	"github.com/loomrun/loom/pkg/errs"
)

// MemoryStore is the in-process reference Store: a namespaced map guarded by
// one mutex, with brute-force cosine search. It backs tests and any
// workspace that declares no external backend (spec §4.C1 default).
type MemoryStore struct {
	mu    sync.RWMutex
	items map[Namespace]map[string]*Item
	emb   embedder.Embedder
}

// NewMemoryStore builds an empty store. emb may be nil if the workspace
// never issues semantic Puts; a nil embedder used semantically returns a
// KindStore error rather than panicking.
func NewMemoryStore(emb embedder.Embedder) *MemoryStore {
	return &MemoryStore{
		items: make(map[Namespace]map[string]*Item),
		emb:   emb,
	}
}

func (m *MemoryStore) bucket(ns Namespace) map[string]*Item {
	b, ok := m.items[ns]
	if !ok {
		b = make(map[string]*Item)
		m.items[ns] = b
	}
	return b
}

func (m *MemoryStore) Put(ctx context.Context, ns Namespace, key string, item Item, semantic bool) error {
	item.Namespace = ns
	item.Key = key

	if semantic {
		if m.emb == nil {
			return errs.New(errs.KindStore, "memory_store", "semantic put requires an embedder")
		}
		vec, err := m.emb.Embed(ctx, item.TextField())
		if err != nil {
			return errs.Wrap(errs.KindStore, "memory_store", "embedding failed", err)
		}
		item.Embedding = vec
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := item
	m.bucket(ns)[key] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, ns Namespace, key string, _ bool) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.bucket(ns)[key]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *MemoryStore) Search(ctx context.Context, ns Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error) {
	if m.emb == nil {
		return nil, notSupported("memory_store")
	}
	qv, err := m.emb.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "memory_store", "query embedding failed", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, it := range m.bucket(ns) {
		if len(it.Embedding) == 0 {
			continue
		}
		if !matchesFilter(it.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{
			Key:      it.Key,
			Value:    it.Value,
			Metadata: it.Metadata,
			Document: it.Document,
			Score:    cosine(qv, it.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func matchesFilter(metadata map[string]any, filter map[string]string) bool {
	for k, v := range filter {
		mv, ok := metadata[k]
		if !ok {
			return false
		}
		s, ok := mv.(string)
		if !ok || s != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *MemoryStore) Delete(_ context.Context, ns Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucket(ns), key)
	return nil
}

func (m *MemoryStore) ClearNamespace(_ context.Context, ns Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, ns)
	return nil
}

func (m *MemoryStore) CountNamespace(_ context.Context, ns Namespace) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bucket(ns)), nil
}

func (m *MemoryStore) Keys(_ context.Context, ns Namespace) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.bucket(ns)))
	for k := range m.bucket(ns) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Stats(_ context.Context, ns Namespace, key string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.bucket(ns)[key]
	if !ok {
		return Stats{}, nil
	}
	count := 1
	if it.Metadata != nil {
		if c, ok := it.Metadata["episode_count"].(int); ok {
			count = c
		}
	}
	return Stats{Count: count}, nil
}

// Summarize is a no-op for the in-memory backend: there is no external
// summarization model wired to it, so decay simply leaves the raw item in
// place. Callers log this as a non-fatal DecayError per spec §7.
func (m *MemoryStore) Summarize(context.Context, Namespace, string) error {
	return notSupported("memory_store")
}

func (m *MemoryStore) Close() error { return nil }
