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
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loomrun/loom/pkg/embedder"
	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/llm"
	"github.com/loomrun/loom/pkg/store"
)

// Components holds every provider instance a runtime manager built from
// its three catalogs, keyed by the alias a workspace's manifests
// reference.
type Components struct {
	ChatModels map[string]llm.ChatModel
	Embedders  map[string]embedder.Embedder
	Stores     map[string]store.Store
}

// BuildOptions configures cross-catalog wiring that the catalogs
// themselves don't express — which embedder alias backs which store
// alias.
type BuildOptions struct {
	StoreEmbedder map[string]string
}

// Build constructs every provider named in the three catalogs. Chat
// models and embedders have no inter-dependency, so they start
// concurrently in one errgroup wave; stores depend on an already-built
// embedder, so they start in a second wave, also concurrently within
// itself — mirroring the teacher's concurrent provider startup pattern
// (SPEC_FULL.md DOMAIN STACK, golang.org/x/sync/errgroup).
func Build(ctx context.Context, chat ChatModelCatalog, embed EmbeddingCatalog, stores StoreCatalog, opts BuildOptions) (*Components, error) {
	comp := &Components{
		ChatModels: make(map[string]llm.ChatModel, len(chat)),
		Embedders:  make(map[string]embedder.Embedder, len(embed)),
		Stores:     make(map[string]store.Store, len(stores)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for alias, cfg := range chat {
		alias, cfg := alias, cfg
		g.Go(func() error {
			m, err := llm.NewProvider(gctx, cfg)
			if err != nil {
				return errs.Wrap(errs.KindConfig, "config", "failed to build chat model "+alias, err)
			}
			mu.Lock()
			comp.ChatModels[alias] = m
			mu.Unlock()
			return nil
		})
	}
	for alias, cfg := range embed {
		alias, cfg := alias, cfg
		g.Go(func() error {
			e, err := embedder.NewProvider(cfg)
			if err != nil {
				return errs.Wrap(errs.KindConfig, "config", "failed to build embedder "+alias, err)
			}
			mu.Lock()
			comp.Embedders[alias] = e
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	g2, _ := errgroup.WithContext(ctx)
	for alias, cfg := range stores {
		alias, cfg := alias, cfg
		g2.Go(func() error {
			var emb embedder.Embedder
			if embAlias, ok := opts.StoreEmbedder[alias]; ok {
				emb = comp.Embedders[embAlias]
			}
			s, err := store.NewProvider(cfg, emb)
			if err != nil {
				return errs.Wrap(errs.KindConfig, "config", "failed to build store "+alias, err)
			}
			mu.Lock()
			comp.Stores[alias] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return nil, err
	}

	return comp, nil
}

// Shutdown closes every built provider concurrently, collecting (not
// short-circuiting on) the first error — every provider gets a chance to
// release its resources even if a sibling fails to close cleanly.
func (c *Components) Shutdown() error {
	g := new(errgroup.Group)
	for _, m := range c.ChatModels {
		m := m
		g.Go(m.Close)
	}
	for _, e := range c.Embedders {
		e := e
		g.Go(e.Close)
	}
	for _, s := range c.Stores {
		s := s
		g.Go(s.Close)
	}
	return g.Wait()
}
