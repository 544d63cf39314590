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

	"github.com/redis/go-redis/v9"

	"github.com/loomrun/loom/pkg/errs"
)

// RedisConfig configures the episodic key-value cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedisStore is an episodic-only Store backed by Redis: exact-key lookup
// and namespace membership sets, no similarity search (spec §3 episodic
// memory never needs a vector index).
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

func indexKey(ns Namespace, key string) string {
	return "loom:item:" + collectionName(ns) + ":" + key
}

func indexSet(ns Namespace) string {
	return "loom:keys:" + collectionName(ns)
}

func (r *RedisStore) Put(ctx context.Context, ns Namespace, key string, item Item, semantic bool) error {
	if semantic {
		return errs.New(errs.KindStore, "redis_store", "redis backend does not support semantic puts")
	}
	item.Namespace = ns
	item.Key = key
	payload, err := encodeItem(item)
	if err != nil {
		return errs.Wrap(errs.KindStore, "redis_store", "failed to encode item", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, indexKey(ns, key), payload, 0)
	pipe.SAdd(ctx, indexSet(ns), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindStore, "redis_store", "put failed", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, ns Namespace, key string, _ bool) (*Item, error) {
	payload, err := r.client.Get(ctx, indexKey(ns, key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "redis_store", "get failed", err)
	}
	return decodeItem(payload)
}

func (r *RedisStore) Search(context.Context, Namespace, string, int, map[string]string) ([]SearchResult, error) {
	return nil, notSupported("redis_store")
}

func (r *RedisStore) Delete(ctx context.Context, ns Namespace, key string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, indexKey(ns, key))
	pipe.SRem(ctx, indexSet(ns), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindStore, "redis_store", "delete failed", err)
	}
	return nil
}

func (r *RedisStore) ClearNamespace(ctx context.Context, ns Namespace) error {
	keys, err := r.client.SMembers(ctx, indexSet(ns)).Result()
	if err != nil {
		return errs.Wrap(errs.KindStore, "redis_store", "clear namespace failed", err)
	}
	pipe := r.client.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, indexKey(ns, k))
	}
	pipe.Del(ctx, indexSet(ns))
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindStore, "redis_store", "clear namespace failed", err)
	}
	return nil
}

func (r *RedisStore) CountNamespace(ctx context.Context, ns Namespace) (int, error) {
	n, err := r.client.SCard(ctx, indexSet(ns)).Result()
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "redis_store", "count failed", err)
	}
	return int(n), nil
}

func (r *RedisStore) Keys(ctx context.Context, ns Namespace) ([]string, error) {
	keys, err := r.client.SMembers(ctx, indexSet(ns)).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "redis_store", "keys failed", err)
	}
	return keys, nil
}

func (r *RedisStore) Stats(ctx context.Context, ns Namespace, key string) (Stats, error) {
	item, err := r.Get(ctx, ns, key, false)
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

func (r *RedisStore) Summarize(context.Context, Namespace, string) error {
	return notSupported("redis_store")
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
