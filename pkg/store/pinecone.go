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
	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"context"

	"github.com/loomrun/loom/pkg/embedder"
	"github.com/loomrun/loom/pkg/errs"
)

// PineconeConfig configures the managed vector-DB backend.
type PineconeConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Host      string `mapstructure:"host"`
	IndexName string `mapstructure:"index_name"`
}

// PineconeStore is a Store backed by a Pinecone index. All vectors live in
// the index's default namespace; a loom Namespace is kept apart by an id
// prefix and a "namespace" metadata field.
type PineconeStore struct {
	client    *pinecone.Client
	indexName string
	emb       embedder.Embedder
}

func NewPineconeStore(cfg PineconeConfig, emb embedder.Embedder) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindConfig, "pinecone_store", "API key is required for pinecone")
	}
	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pinecone_store", "failed to create client", err)
	}
	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "loom-index"
	}
	return &PineconeStore{client: client, indexName: indexName, emb: emb}, nil
}

func (p *PineconeStore) conn(ctx context.Context) (*pinecone.IndexConnection, error) {
	idx, err := p.client.DescribeIndex(ctx, p.indexName)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pinecone_store", "failed to describe index", err)
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: idx.Host, Namespace: ""})
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pinecone_store", "failed to connect to index", err)
	}
	return conn, nil
}

func (p *PineconeStore) Put(ctx context.Context, ns Namespace, key string, item Item, semantic bool) error {
	item.Namespace = ns
	item.Key = key
	if !semantic {
		return errs.New(errs.KindStore, "pinecone_store", "pinecone backend requires semantic puts")
	}
	if p.emb == nil {
		return errs.New(errs.KindStore, "pinecone_store", "semantic put requires an embedder")
	}
	vec, err := p.emb.Embed(ctx, item.TextField())
	if err != nil {
		return errs.Wrap(errs.KindStore, "pinecone_store", "embedding failed", err)
	}
	item.Embedding = vec

	payload, err := encodeItem(item)
	if err != nil {
		return errs.Wrap(errs.KindStore, "pinecone_store", "failed to encode item", err)
	}
	fields := map[string]any{}
	for k, v := range item.Metadata {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	fields["namespace"] = collectionName(ns)
	fields["payload"] = payload
	meta, err := structpb.NewStruct(fields)
	if err != nil {
		return errs.Wrap(errs.KindStore, "pinecone_store", "failed to build metadata", err)
	}

	conn, err := p.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       namespacedID(ns, key),
		Values:   vec,
		Metadata: meta,
	}}); err != nil {
		return errs.Wrap(errs.KindStore, "pinecone_store", "upsert failed", err)
	}
	return nil
}

func namespacedID(ns Namespace, key string) string {
	return collectionName(ns) + "::" + key
}

func (p *PineconeStore) Get(ctx context.Context, ns Namespace, key string, _ bool) (*Item, error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.FetchVectors(ctx, []string{namespacedID(ns, key)})
	if err != nil || resp == nil {
		return nil, nil
	}
	v, ok := resp.Vectors[namespacedID(ns, key)]
	if !ok || v.Metadata == nil {
		return nil, nil
	}
	payload, ok := v.Metadata.Fields["payload"]
	if !ok {
		return nil, nil
	}
	return decodeItem(payload.GetStringValue())
}

func (p *PineconeStore) Search(ctx context.Context, ns Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error) {
	if p.emb == nil {
		return nil, notSupported("pinecone_store")
	}
	qv, err := p.emb.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pinecone_store", "query embedding failed", err)
	}

	conn, err := p.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	filterFields := map[string]any{"namespace": collectionName(ns)}
	for k, v := range filter {
		filterFields[k] = v
	}
	metaFilter, err := structpb.NewStruct(filterFields)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pinecone_store", "failed to build filter", err)
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          qv,
		TopK:            uint32(limit),
		MetadataFilter:  metaFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pinecone_store", "query failed", err)
	}

	out := make([]SearchResult, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil || m.Vector.Metadata == nil {
			continue
		}
		payload, ok := m.Vector.Metadata.Fields["payload"]
		if !ok {
			continue
		}
		item, err := decodeItem(payload.GetStringValue())
		if err != nil {
			continue
		}
		out = append(out, SearchResult{
			Key:      item.Key,
			Value:    item.Value,
			Metadata: item.Metadata,
			Document: item.Document,
			Score:    float64(m.Score),
		})
	}
	return out, nil
}

func (p *PineconeStore) Delete(ctx context.Context, ns Namespace, key string) error {
	conn, err := p.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.DeleteVectorsById(ctx, []string{namespacedID(ns, key)}); err != nil {
		return errs.Wrap(errs.KindStore, "pinecone_store", "delete failed", err)
	}
	return nil
}

func (p *PineconeStore) ClearNamespace(ctx context.Context, ns Namespace) error {
	conn, err := p.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	metaFilter, err := structpb.NewStruct(map[string]any{"namespace": collectionName(ns)})
	if err != nil {
		return errs.Wrap(errs.KindStore, "pinecone_store", "failed to build filter", err)
	}
	if err := conn.DeleteVectorsByFilter(ctx, metaFilter); err != nil {
		return errs.Wrap(errs.KindStore, "pinecone_store", "clear namespace failed", err)
	}
	return nil
}

func (p *PineconeStore) CountNamespace(ctx context.Context, ns Namespace) (int, error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "pinecone_store", "describe index stats failed", err)
	}
	return int(stats.TotalVectorCount), nil
}

// Keys is not supported: Pinecone has no list-by-prefix primitive suited to
// this interface without maintaining a side index, which this backend
// deliberately avoids to stay a thin adapter over the managed service.
func (p *PineconeStore) Keys(context.Context, Namespace) ([]string, error) {
	return nil, notSupported("pinecone_store")
}

func (p *PineconeStore) Stats(ctx context.Context, ns Namespace, key string) (Stats, error) {
	item, err := p.Get(ctx, ns, key, false)
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

func (p *PineconeStore) Summarize(context.Context, Namespace, string) error {
	return notSupported("pinecone_store")
}

func (p *PineconeStore) Close() error { return nil }
