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
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/loomrun/loom/pkg/embedder"
	"github.com/loomrun/loom/pkg/errs"
)

// PGVectorConfig configures the relational store backend. The target
// database is expected to have the pgvector extension enabled and a table
// matching pgvectorSchema for the store's lifetime.
type PGVectorConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

const pgvectorSchema = `
CREATE TABLE IF NOT EXISTS %s (
	tenant     text NOT NULL,
	bucket     text NOT NULL,
	key        text NOT NULL,
	payload    text NOT NULL,
	embedding  vector,
	metadata   jsonb,
	PRIMARY KEY (tenant, bucket, key)
)`

// PGVectorStore is a Store backed by Postgres with the pgvector extension,
// combining relational storage and vector similarity search in one table.
type PGVectorStore struct {
	db    *sql.DB
	table string
	emb   embedder.Embedder
}

func NewPGVectorStore(cfg PGVectorConfig, emb embedder.Embedder) (*PGVectorStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pgvector_store", "failed to open connection", err)
	}
	table := cfg.Table
	if table == "" {
		table = "loom_items"
	}
	if _, err := db.Exec(fmt.Sprintf(pgvectorSchema, table)); err != nil {
		return nil, errs.Wrap(errs.KindStore, "pgvector_store", "failed to ensure schema", err)
	}
	return &PGVectorStore{db: db, table: table, emb: emb}, nil
}

func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (p *PGVectorStore) Put(ctx context.Context, ns Namespace, key string, item Item, semantic bool) error {
	item.Namespace = ns
	item.Key = key

	var vecLit any
	if semantic {
		if p.emb == nil {
			return errs.New(errs.KindStore, "pgvector_store", "semantic put requires an embedder")
		}
		vec, err := p.emb.Embed(ctx, item.TextField())
		if err != nil {
			return errs.Wrap(errs.KindStore, "pgvector_store", "embedding failed", err)
		}
		item.Embedding = vec
		vecLit = vectorLiteral(vec)
	}

	payload, err := encodeItem(item)
	if err != nil {
		return errs.Wrap(errs.KindStore, "pgvector_store", "failed to encode item", err)
	}
	metaJSON, err := encodeMetadata(item.Metadata)
	if err != nil {
		return errs.Wrap(errs.KindStore, "pgvector_store", "failed to encode metadata", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (tenant, bucket, key, payload, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant, bucket, key) DO UPDATE
		SET payload = EXCLUDED.payload, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`, p.table)
	if _, err := p.db.ExecContext(ctx, query, ns.Tenant, ns.Bucket, key, payload, vecLit, metaJSON); err != nil {
		return errs.Wrap(errs.KindStore, "pgvector_store", "upsert failed", err)
	}
	return nil
}

func (p *PGVectorStore) Get(ctx context.Context, ns Namespace, key string, _ bool) (*Item, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE tenant = $1 AND bucket = $2 AND key = $3`, p.table)
	var payload string
	err := p.db.QueryRowContext(ctx, query, ns.Tenant, ns.Bucket, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pgvector_store", "get failed", err)
	}
	return decodeItem(payload)
}

func (p *PGVectorStore) Search(ctx context.Context, ns Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error) {
	if p.emb == nil {
		return nil, notSupported("pgvector_store")
	}
	qv, err := p.emb.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pgvector_store", "query embedding failed", err)
	}

	sqlQuery := fmt.Sprintf(`
		SELECT payload, 1 - (embedding <=> $3) AS score
		FROM %s
		WHERE tenant = $1 AND bucket = $2 AND embedding IS NOT NULL`, p.table)
	args := []any{ns.Tenant, ns.Bucket, vectorLiteral(qv)}

	i := len(args) + 1
	for k, v := range filter {
		sqlQuery += fmt.Sprintf(" AND metadata->>'%s' = $%d", k, i)
		args = append(args, v)
		i++
	}
	sqlQuery += fmt.Sprintf(" ORDER BY embedding <=> $3 LIMIT $%d", i)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pgvector_store", "search failed", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var payload string
		var score float64
		if err := rows.Scan(&payload, &score); err != nil {
			return nil, errs.Wrap(errs.KindStore, "pgvector_store", "search scan failed", err)
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
			Score:    score,
		})
	}
	return out, rows.Err()
}

func (p *PGVectorStore) Delete(ctx context.Context, ns Namespace, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE tenant = $1 AND bucket = $2 AND key = $3`, p.table)
	if _, err := p.db.ExecContext(ctx, query, ns.Tenant, ns.Bucket, key); err != nil {
		return errs.Wrap(errs.KindStore, "pgvector_store", "delete failed", err)
	}
	return nil
}

func (p *PGVectorStore) ClearNamespace(ctx context.Context, ns Namespace) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE tenant = $1 AND bucket = $2`, p.table)
	if _, err := p.db.ExecContext(ctx, query, ns.Tenant, ns.Bucket); err != nil {
		return errs.Wrap(errs.KindStore, "pgvector_store", "clear namespace failed", err)
	}
	return nil
}

func (p *PGVectorStore) CountNamespace(ctx context.Context, ns Namespace) (int, error) {
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE tenant = $1 AND bucket = $2`, p.table)
	var n int
	if err := p.db.QueryRowContext(ctx, query, ns.Tenant, ns.Bucket).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.KindStore, "pgvector_store", "count failed", err)
	}
	return n, nil
}

func (p *PGVectorStore) Keys(ctx context.Context, ns Namespace) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %s WHERE tenant = $1 AND bucket = $2 ORDER BY key`, p.table)
	rows, err := p.db.QueryContext(ctx, query, ns.Tenant, ns.Bucket)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "pgvector_store", "keys failed", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.Wrap(errs.KindStore, "pgvector_store", "keys scan failed", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (p *PGVectorStore) Stats(ctx context.Context, ns Namespace, key string) (Stats, error) {
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

// Summarize is left to an external collaborator: the source this was
// distilled from pairs its postgres_store.py with a separate summarization
// model invocation that this adapter has no handle to.
func (p *PGVectorStore) Summarize(context.Context, Namespace, string) error {
	return notSupported("pgvector_store")
}

func (p *PGVectorStore) Close() error {
	return p.db.Close()
}
