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
	"encoding/json"
	"fmt"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/loomrun/loom/pkg/embedder"
	"github.com/loomrun/loom/pkg/errs"
)

// ChromemConfig configures the embedded chromem-go backend, a
// zero-external-services store.
type ChromemConfig struct {
	PersistPath string `mapstructure:"persist_path"`
	Compress    bool   `mapstructure:"compress"`
}

// ChromemStore is a Store backed by an in-process chromem-go database, one
// collection per namespace. Vectors are computed by the supplied Embedder
// and handed to chromem pre-computed, matching the identity-embedding-func
// pattern the library expects when embeddings are managed externally.
type ChromemStore struct {
	db  *chromem.DB
	emb embedder.Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	keys        map[string]map[string]struct{} // collection -> set of ids, tracked alongside chromem
}

func NewChromemStore(cfg ChromemConfig, emb embedder.Embedder) (*ChromemStore, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, errs.Wrap(errs.KindStore, "chromem_store", "failed to open persistent database", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &ChromemStore{
		db:          db,
		emb:         emb,
		collections: make(map[string]*chromem.Collection),
		keys:        make(map[string]map[string]struct{}),
	}, nil
}

func collectionName(ns Namespace) string {
	return ns.Tenant + "__" + ns.Bucket
}

func identityEmbed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem store: embeddings are always pre-computed by the configured embedder")
}

func (c *ChromemStore) collection(ns Namespace) (*chromem.Collection, error) {
	name := collectionName(ns)

	c.mu.RLock()
	if col, ok := c.collections[name]; ok {
		c.mu.RUnlock()
		return col, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	col, err := c.db.GetOrCreateCollection(name, nil, chromem.EmbeddingFunc(identityEmbed))
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "chromem_store", "failed to open collection", err)
	}
	c.collections[name] = col
	return col, nil
}

func (c *ChromemStore) Put(ctx context.Context, ns Namespace, key string, item Item, semantic bool) error {
	item.Namespace = ns
	item.Key = key

	col, err := c.collection(ns)
	if err != nil {
		return err
	}

	var vec []float32
	if semantic {
		if c.emb == nil {
			return errs.New(errs.KindStore, "chromem_store", "semantic put requires an embedder")
		}
		vec, err = c.emb.Embed(ctx, item.TextField())
		if err != nil {
			return errs.Wrap(errs.KindStore, "chromem_store", "embedding failed", err)
		}
		item.Embedding = vec
	}

	payload, err := encodeItem(item)
	if err != nil {
		return errs.Wrap(errs.KindStore, "chromem_store", "failed to encode item", err)
	}

	meta := map[string]string{}
	for k, v := range item.Metadata {
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	meta["__payload"] = payload

	doc := chromem.Document{
		ID:        key,
		Content:   item.TextField(),
		Metadata:  meta,
		Embedding: vec,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return errs.Wrap(errs.KindStore, "chromem_store", "upsert failed", err)
	}

	c.mu.Lock()
	name := collectionName(ns)
	if c.keys[name] == nil {
		c.keys[name] = make(map[string]struct{})
	}
	c.keys[name][key] = struct{}{}
	c.mu.Unlock()
	return nil
}

func encodeItem(item Item) (string, error) {
	b, err := json.Marshal(item)
	return string(b), err
}

func decodeItem(payload string) (*Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *ChromemStore) Get(ctx context.Context, ns Namespace, key string, _ bool) (*Item, error) {
	col, err := c.collection(ns)
	if err != nil {
		return nil, err
	}
	doc, err := col.GetByID(ctx, key)
	if err != nil {
		return nil, nil
	}
	payload, ok := doc.Metadata["__payload"]
	if !ok {
		return nil, nil
	}
	return decodeItem(payload)
}

func (c *ChromemStore) Search(ctx context.Context, ns Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error) {
	if c.emb == nil {
		return nil, notSupported("chromem_store")
	}
	col, err := c.collection(ns)
	if err != nil {
		return nil, err
	}
	qv, err := c.emb.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "chromem_store", "query embedding failed", err)
	}

	n := col.Count()
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, qv, n, filter, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "chromem_store", "search failed", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		payload, ok := r.Metadata["__payload"]
		if !ok {
			continue
		}
		item, err := decodeItem(payload)
		if err != nil {
			continue
		}
		out = append(out, SearchResult{
			Key:      item.Key,
			Value:    item.Value,
			Metadata: item.Metadata,
			Document: item.Document,
			Score:    float64(r.Similarity),
		})
	}
	return out, nil
}

func (c *ChromemStore) Delete(ctx context.Context, ns Namespace, key string) error {
	col, err := c.collection(ns)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, key); err != nil {
		return errs.Wrap(errs.KindStore, "chromem_store", "delete failed", err)
	}

	c.mu.Lock()
	delete(c.keys[collectionName(ns)], key)
	c.mu.Unlock()
	return nil
}

func (c *ChromemStore) ClearNamespace(_ context.Context, ns Namespace) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := collectionName(ns)
	if err := c.db.DeleteCollection(name); err != nil {
		return errs.Wrap(errs.KindStore, "chromem_store", "clear namespace failed", err)
	}
	delete(c.collections, name)
	delete(c.keys, name)
	return nil
}

func (c *ChromemStore) CountNamespace(_ context.Context, ns Namespace) (int, error) {
	col, err := c.collection(ns)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

func (c *ChromemStore) Keys(_ context.Context, ns Namespace) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.keys[collectionName(ns)]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys, nil
}

func (c *ChromemStore) Stats(ctx context.Context, ns Namespace, key string) (Stats, error) {
	item, err := c.Get(ctx, ns, key, false)
	if err != nil || item == nil {
		return Stats{}, err
	}
	count := 1
	if item.Metadata != nil {
		if v, ok := item.Metadata["episode_count"].(float64); ok {
			count = int(v)
		}
	}
	return Stats{Count: count}, nil
}

func (c *ChromemStore) Summarize(context.Context, Namespace, string) error {
	return notSupported("chromem_store")
}

func (c *ChromemStore) Close() error { return nil }
