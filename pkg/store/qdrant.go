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
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/loomrun/loom/pkg/embedder"
	"github.com/loomrun/loom/pkg/errs"
)

// QdrantConfig configures the distributed vector-DB backend.
type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// QdrantStore is a Store backed by a Qdrant collection per namespace.
type QdrantStore struct {
	client *qdrant.Client
	emb    embedder.Embedder
}

func NewQdrantStore(cfg QdrantConfig, emb embedder.Embedder) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "qdrant_store", "failed to connect to qdrant", err)
	}
	return &QdrantStore{client: client, emb: emb}, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return errs.Wrap(errs.KindStore, "qdrant_store", "collection existence check failed", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return errs.Wrap(errs.KindStore, "qdrant_store", "failed to create collection", err)
	}
	return nil
}

func (q *QdrantStore) Put(ctx context.Context, ns Namespace, key string, item Item, semantic bool) error {
	item.Namespace = ns
	item.Key = key

	if !semantic {
		return errs.New(errs.KindStore, "qdrant_store", "qdrant backend requires semantic puts")
	}
	if q.emb == nil {
		return errs.New(errs.KindStore, "qdrant_store", "semantic put requires an embedder")
	}
	vec, err := q.emb.Embed(ctx, item.TextField())
	if err != nil {
		return errs.Wrap(errs.KindStore, "qdrant_store", "embedding failed", err)
	}
	item.Embedding = vec

	collection := collectionName(ns)
	if err := q.ensureCollection(ctx, collection, len(vec)); err != nil {
		return err
	}

	payload, err := encodeItem(item)
	if err != nil {
		return errs.Wrap(errs.KindStore, "qdrant_store", "failed to encode item", err)
	}

	fields := map[string]any{}
	for k, v := range item.Metadata {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	fields["payload"] = payload

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(key),
		Vectors: qdrant.NewVectors(vec...),
		Payload: qdrant.NewValueMap(fields),
	}
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	}); err != nil {
		return errs.Wrap(errs.KindStore, "qdrant_store", "upsert failed", err)
	}
	return nil
}

func (q *QdrantStore) Get(ctx context.Context, ns Namespace, key string, _ bool) (*Item, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName(ns),
		Ids:            []*qdrant.PointId{qdrant.NewID(key)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil || len(points) == 0 {
		return nil, nil
	}
	return itemFromPayload(points[0].Payload)
}

func itemFromPayload(payload map[string]*qdrant.Value) (*Item, error) {
	v, ok := payload["payload"]
	if !ok {
		return nil, nil
	}
	return decodeItem(v.GetStringValue())
}

func (q *QdrantStore) Search(ctx context.Context, ns Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error) {
	if q.emb == nil {
		return nil, notSupported("qdrant_store")
	}
	qv, err := q.emb.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "qdrant_store", "query embedding failed", err)
	}

	req := &qdrant.QueryPoints{
		CollectionName: collectionName(ns),
		Query:          qdrant.NewQuery(qv...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		req.Filter = buildQdrantFilter(filter)
	}

	resp, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "qdrant_store", "search failed", err)
	}

	out := make([]SearchResult, 0, len(resp))
	for _, p := range resp {
		item, err := itemFromPayload(p.Payload)
		if err != nil || item == nil {
			continue
		}
		out = append(out, SearchResult{
			Key:      item.Key,
			Value:    item.Value,
			Metadata: item.Metadata,
			Document: item.Document,
			Score:    float64(p.Score),
		})
	}
	return out, nil
}

func buildQdrantFilter(filter map[string]string) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   k,
					Match: qdrant.NewMatch(v),
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func (q *QdrantStore) Delete(ctx context.Context, ns Namespace, key string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName(ns),
		Points:         qdrant.NewPointsSelector(qdrant.NewID(key)),
	})
	if err != nil {
		return errs.Wrap(errs.KindStore, "qdrant_store", "delete failed", err)
	}
	return nil
}

func (q *QdrantStore) ClearNamespace(ctx context.Context, ns Namespace) error {
	if err := q.client.DeleteCollection(ctx, collectionName(ns)); err != nil {
		return errs.Wrap(errs.KindStore, "qdrant_store", "clear namespace failed", err)
	}
	return nil
}

func (q *QdrantStore) CountNamespace(ctx context.Context, ns Namespace) (int, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{CollectionName: collectionName(ns)})
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "qdrant_store", "count failed", err)
	}
	return int(count), nil
}

func (q *QdrantStore) Keys(ctx context.Context, ns Namespace) ([]string, error) {
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{CollectionName: collectionName(ns)})
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "qdrant_store", "scroll failed", err)
	}
	keys := make([]string, 0, len(points))
	for _, p := range points {
		if item, err := itemFromPayload(p.Payload); err == nil && item != nil {
			keys = append(keys, item.Key)
		}
	}
	return keys, nil
}

func (q *QdrantStore) Stats(ctx context.Context, ns Namespace, key string) (Stats, error) {
	item, err := q.Get(ctx, ns, key, false)
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

func (q *QdrantStore) Summarize(context.Context, Namespace, string) error {
	return notSupported("qdrant_store")
}

func (q *QdrantStore) Close() error {
	return q.client.Close()
}
