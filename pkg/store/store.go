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

// Package store implements the namespaced key-value + semantic-search
// adapter (spec §4.C1).
//
// Store is the single interface every backend implements; namespaces
// provide logical isolation so the same backend can serve many sessions
// and tenants concurrently (spec §5 "shared-resource policy").
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loomrun/loom/pkg/errs"
)

// Namespace is a tuple of exactly two strings (spec §3 GLOSSARY).
type Namespace struct {
	Tenant string
	Bucket string
}

// Item is one stored record. Semantic items additionally carry an
// Embedding; episodic items leave it nil (spec §3 "Memory item").
type Item struct {
	Namespace Namespace
	Key       string
	Value     map[string]any
	Metadata  map[string]any
	Document  map[string]any
	CreatedAt time.Time
	Reward    *float64
	Embedding []float32
}

// TextField returns the canonical text field a semantic Put embeds, per
// spec §4.C1 ("embed value.text or the canonical text field").
func (it Item) TextField() string {
	if it.Value == nil {
		return ""
	}
	if s, ok := it.Value["text"].(string); ok {
		return s
	}
	return ""
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	Key      string
	Value    map[string]any
	Metadata map[string]any
	Document map[string]any
	Score    float64
}

// Stats reports per-key bookkeeping used by the memory manager's decay
// hook (spec §4.C4 step 4).
type Stats struct {
	Count int
}

// Store is the unified interface fronting every backend (spec §4.C1).
// All operations are asynchronous in the source this was distilled from;
// in Go that's expressed with a context.Context on every call instead of a
// separate async variant.
type Store interface {
	// Put upserts an item. When semantic is true the implementation MUST
	// embed the item's text field and index the resulting vector under
	// the same namespace; when false the item is stored raw.
	Put(ctx context.Context, ns Namespace, key string, item Item, semantic bool) error

	// Get fetches an item by exact key. Returns (nil, nil) when absent.
	Get(ctx context.Context, ns Namespace, key string, semantic bool) (*Item, error)

	// Search ranks items in ns by cosine similarity to query, filtered by
	// exact-match metadata predicates, with a deterministic tie-break on
	// key. Backends that were built semantic-disabled return
	// errs.KindStore wrapping ErrNotSupported.
	Search(ctx context.Context, ns Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error)

	Delete(ctx context.Context, ns Namespace, key string) error
	ClearNamespace(ctx context.Context, ns Namespace) error
	CountNamespace(ctx context.Context, ns Namespace) (int, error)
	Keys(ctx context.Context, ns Namespace) ([]string, error)

	// Stats and Summarize back the memory manager's decay hook (spec
	// §4.C4 step 4). A backend that cannot support decay may return
	// ErrNotSupported from Summarize; callers treat that as a logged,
	// non-propagated DecayError.
	Stats(ctx context.Context, ns Namespace, key string) (Stats, error)
	Summarize(ctx context.Context, ns Namespace, key string) error

	Close() error
}

// ErrNotSupported is wrapped into an errs.KindStore error by backends that
// cannot perform the requested operation (e.g. Search on a KV-only store).
var ErrNotSupported = errs.New(errs.KindStore, "store", "operation not supported by this backend")

func notSupported(component string) error {
	return errs.Wrap(errs.KindStore, component, "operation not supported by this backend", ErrNotSupported)
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}
