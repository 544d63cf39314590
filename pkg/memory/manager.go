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

// Package memory implements the two-tier memory manager (spec §4.C4):
// semantic memory (embedding-indexed, similarity search) and episodic memory
// (exact-key, raw), both fronted by a single store.Store.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/store"
)

// Config tunes the manager's decay and recall behavior.
type Config struct {
	// RecallLimit bounds how many semantic hits retrieve_semantic returns
	// by default (spec §4.C4 default recall size).
	RecallLimit int

	// DecayThreshold is the episode count at which SaveEpisode summarizes an
	// episodic key: every save that leaves the key's episode_count at or
	// above it runs the decay hook; SaveSemantic never runs it (spec §4.C4
	// step 4).
	DecayThreshold int
}

func (c *Config) setDefaults() {
	if c.RecallLimit <= 0 {
		c.RecallLimit = 5
	}
	if c.DecayThreshold <= 0 {
		c.DecayThreshold = 20
	}
}

// rewardAgg accumulates the rewards observed for one namespace/key pair
// since process start. It is in-memory and non-durable by design: the
// durable truth is the avg_reward/reward_count pair merged into the
// item's metadata on every save_semantic call that carries a reward
// (spec §4.C4 reward contract).
type rewardAgg struct {
	sum   float64
	count int
}

// Manager is the two-tier memory manager: one store.Store backs both the
// semantic and episodic namespaces, and one embedder.Embedder backs search.
type Manager struct {
	backend store.Store
	cfg     Config
	log     *slog.Logger
	bus     *events.Bus

	rewardMu  sync.Mutex
	rewardAgg map[string]*rewardAgg
}

// New builds a Manager over backend. bus may be nil, in which case reward
// assignments are never announced.
func New(backend store.Store, cfg Config, bus *events.Bus, log *slog.Logger) *Manager {
	cfg.setDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		backend:   backend,
		cfg:       cfg,
		log:       log,
		bus:       bus,
		rewardAgg: make(map[string]*rewardAgg),
	}
}

// SaveSemantic upserts text (plus optional metadata and document) into the
// semantic namespace, embedding the text (spec §4.C4 step 1). When reward
// is non-nil it is folded into the process-lifetime mean for ns/key and
// avg_reward/reward_count are merged into the stored metadata (spec §4.C4
// reward contract, scenario 6).
func (m *Manager) SaveSemantic(ctx context.Context, ns store.Namespace, key, text string, metadata map[string]any, document map[string]any, reward *float64) (store.Item, error) {
	merged := map[string]any{}
	for k, v := range metadata {
		merged[k] = v
	}

	item := store.Item{
		Value:     map[string]any{"text": text},
		Metadata:  merged,
		Document:  document,
		CreatedAt: time.Now(),
		Reward:    reward,
	}

	if reward != nil {
		avg, count := m.accumulateReward(ns, key, *reward)
		merged["reward"] = *reward
		merged["avg_reward"] = avg
		merged["reward_count"] = count
	}

	if err := m.backend.Put(ctx, ns, key, item, true); err != nil {
		return store.Item{}, errs.Wrap(errs.KindStore, "memory_manager", "failed to save semantic item", err)
	}

	if reward != nil {
		m.emitRewardAssigned(ns, key, *reward, merged["avg_reward"].(float64), merged["reward_count"].(int))
	}

	return item, nil
}

// accumulateReward folds amount into ns/key's in-memory running mean and
// returns the updated avg_reward and reward_count. The cache is
// non-durable: after a process restart every key's mean starts over from
// zero; the avg_reward/reward_count already merged into its stored
// metadata is not read back (spec §4.C4 reward contract).
func (m *Manager) accumulateReward(ns store.Namespace, key string, amount float64) (float64, int) {
	m.rewardMu.Lock()
	defer m.rewardMu.Unlock()

	cacheKey := ns.Tenant + "/" + ns.Bucket + "/" + key
	agg, ok := m.rewardAgg[cacheKey]
	if !ok {
		agg = &rewardAgg{}
		m.rewardAgg[cacheKey] = agg
	}
	agg.sum += amount
	agg.count++
	return agg.sum / float64(agg.count), agg.count
}

func (m *Manager) emitRewardAssigned(ns store.Namespace, key string, reward, avgReward float64, rewardCount int) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(events.Event{
		Name:      events.RewardAssigned,
		Component: "memory_manager",
		Payload: map[string]any{
			"namespace_tenant": ns.Tenant,
			"namespace_bucket": ns.Bucket,
			"key":              key,
			"reward":           reward,
			"avg_reward":       avgReward,
			"reward_count":     rewardCount,
		},
	})
}

// RetrieveSemantic ranks semantic items in ns by similarity to query. A
// limit of 0 uses the manager's configured default (spec §4.C4 step 2).
func (m *Manager) RetrieveSemantic(ctx context.Context, ns store.Namespace, query string, limit int, filter map[string]string) ([]store.SearchResult, error) {
	if query == "" {
		// Open question decision: an empty query returns an empty result
		// set rather than an error — there is nothing meaningful to rank
		// against, and callers building prompts from "whatever is
		// relevant" should not have to special-case the empty-task start
		// of a session.
		return nil, nil
	}
	if limit <= 0 {
		limit = m.cfg.RecallLimit
	}
	return m.backend.Search(ctx, ns, query, limit, filter)
}

// SaveEpisode upserts value into the episodic namespace under its exact
// key, bumping the key's episode_count for the decay hook (spec §4.C4 step
// 3).
func (m *Manager) SaveEpisode(ctx context.Context, ns store.Namespace, key string, value map[string]any) error {
	existing, err := m.backend.Get(ctx, ns, key, false)
	if err != nil {
		return errs.Wrap(errs.KindStore, "memory_manager", "failed to read existing episode", err)
	}

	count := 1
	metadata := map[string]any{}
	if existing != nil && existing.Metadata != nil {
		metadata = existing.Metadata
		if c, ok := metadata["episode_count"].(float64); ok {
			count = int(c) + 1
		} else if c, ok := metadata["episode_count"].(int); ok {
			count = c + 1
		}
	}
	metadata["episode_count"] = count

	if err := m.backend.Put(ctx, ns, key, store.Item{
		Value:     value,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}, false); err != nil {
		return errs.Wrap(errs.KindStore, "memory_manager", "failed to save episode", err)
	}

	if count >= m.cfg.DecayThreshold {
		m.decay(ctx, ns, key)
	}
	return nil
}

// FetchEpisodes returns the episodic items for the given keys, skipping
// keys that do not exist rather than erroring (spec §4.C4 step 3 — a
// partial fetch is a normal outcome, not a failure).
func (m *Manager) FetchEpisodes(ctx context.Context, ns store.Namespace, keys []string) ([]store.Item, error) {
	out := make([]store.Item, 0, len(keys))
	for _, k := range keys {
		item, err := m.backend.Get(ctx, ns, k, false)
		if err != nil {
			return nil, errs.Wrap(errs.KindStore, "memory_manager", "failed to fetch episode", err)
		}
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

// decay invokes the backend's summarization hook. Per spec §7 a decay
// failure is logged and swallowed rather than propagated — summarization is
// an optimization, not a correctness requirement, and a noisy backend
// should never fail an agent turn over it.
func (m *Manager) decay(ctx context.Context, ns store.Namespace, key string) {
	if err := m.backend.Summarize(ctx, ns, key); err != nil {
		m.log.Warn("episodic summarization failed, leaving raw history in place",
			"namespace_tenant", ns.Tenant, "namespace_bucket", ns.Bucket, "key", key, "error", err)
	}
}

