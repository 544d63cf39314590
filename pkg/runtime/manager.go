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

// Package runtime implements the workspace hub and per-workspace runtime
// manager of spec §4.C11: the entry point that turns one on-disk
// workspace directory into a running set of providers, registries, a
// compiled graph, and a session_id -> orchestrator map, and exposes the
// single run_user_message entrypoint the CLI (and any other frontend)
// drives.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/pkg/agent"
	"github.com/loomrun/loom/pkg/config"
	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/graph"
	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/model"
	"github.com/loomrun/loom/pkg/orchestrator"
	"github.com/loomrun/loom/pkg/session"
	"github.com/loomrun/loom/pkg/store"
	"github.com/loomrun/loom/pkg/workspace"
)

// ManagerConfig configures a Manager's shared collaborators. Bus and Log
// default to a fresh events.Bus and slog.Default() when nil.
type ManagerConfig struct {
	Bus             *events.Bus
	Log             *slog.Logger
	ToolCatalogPath string
	HITL            graph.HumanInTheLoop
}

// Manager is the per-workspace runtime singleton (spec §4.C11): it owns
// the workspace's registries, the compiled graph (rebuilt in place on an
// artifact reload), the provider components built once at construction,
// and a session_id -> orchestrator cache.
type Manager struct {
	dir  string
	bus  *events.Bus
	log  *slog.Logger
	hitl graph.HumanInTheLoop

	mu         sync.RWMutex
	ws         *workspace.Workspace
	graph      *graph.Graph
	components *config.Components
	modelMgr   *model.Manager

	sessMu   sync.Mutex
	sessions map[string]*sessionEntry

	reload *ReloadManager
}

type sessionEntry struct {
	orch  *orchestrator.Orchestrator
	graph *graph.Graph
}

// NewManager loads dir as a workspace, builds its provider components,
// memory and model managers, agent/stage registries, and compiled graph,
// and starts an artifact watcher that, on any change under dir, re-reads
// the agent manifests and stage.json and rebuilds the graph in place (spec
// §5 "reloads swap the whole registry atomically"). workspace.json,
// tools_policy.json and the provider catalogs are read only here.
func NewManager(ctx context.Context, dir string, cfg ManagerConfig) (*Manager, error) {
	if cfg.Bus == nil {
		cfg.Bus = events.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	manifest, err := workspace.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	mc := manifest.Models

	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	chatCatalog, err := config.LoadChatModelCatalog(resolve(mc.ChatModelCatalog))
	if err != nil {
		return nil, err
	}

	embedCatalog := config.EmbeddingCatalog{}
	if mc.EmbeddingCatalog != "" {
		if embedCatalog, err = config.LoadEmbeddingCatalog(resolve(mc.EmbeddingCatalog)); err != nil {
			return nil, err
		}
	}

	storeCatalog := config.StoreCatalog{}
	if mc.StoreCatalog != "" {
		if storeCatalog, err = config.LoadStoreCatalog(resolve(mc.StoreCatalog)); err != nil {
			return nil, err
		}
	}

	storeEmbedder := map[string]string{}
	if mc.StoreProvider != "" && mc.EmbeddingProvider != "" {
		storeEmbedder[mc.StoreProvider] = mc.EmbeddingProvider
	}

	comp, err := config.Build(ctx, chatCatalog, embedCatalog, storeCatalog, config.BuildOptions{StoreEmbedder: storeEmbedder})
	if err != nil {
		return nil, err
	}

	chat, ok := comp.ChatModels[mc.ChatProvider]
	if !ok {
		_ = comp.Shutdown()
		return nil, errs.New(errs.KindConfig, "runtime", fmt.Sprintf("chat provider alias %q not found in chat model catalog", mc.ChatProvider))
	}

	var backend store.Store
	if mc.StoreProvider != "" {
		backend, ok = comp.Stores[mc.StoreProvider]
		if !ok {
			_ = comp.Shutdown()
			return nil, errs.New(errs.KindConfig, "runtime", fmt.Sprintf("store provider alias %q not found in store catalog", mc.StoreProvider))
		}
	} else {
		backend = store.NewMemoryStore(comp.Embedders[mc.EmbeddingProvider])
	}

	mem := memory.New(backend, memory.Config{
		RecallLimit:    mc.RecallLimit,
		DecayThreshold: mc.DecayThreshold,
	}, cfg.Bus, cfg.Log)

	mm := model.New(chat, mem, model.Config{
		TopK:            mc.TopK,
		QueueSize:       mc.ReflectionQueueSize,
		ShutdownTimeout: time.Duration(mc.ShutdownTimeoutSeconds) * time.Second,
	}, cfg.Log)

	deps := workspace.AgentDeps{
		Model:    mm,
		Memory:   mem,
		External: agent.NewExternalRegistry(),
		Bus:      cfg.Bus,
		Log:      cfg.Log,
	}

	ws, err := workspace.Load(dir, deps, resolve(cfg.ToolCatalogPath))
	if err != nil {
		_ = mm.Shutdown(context.Background())
		_ = comp.Shutdown()
		return nil, err
	}

	g := graph.New(ws.Stages, ws.Agents, cfg.HITL, cfg.Log)

	m := &Manager{
		dir:        dir,
		bus:        cfg.Bus,
		log:        cfg.Log,
		hitl:       cfg.HITL,
		ws:         ws,
		graph:      g,
		components: comp,
		modelMgr:   mm,
		sessions:   map[string]*sessionEntry{},
	}

	reload, err := newReloadManager(dir, cfg.Log, m.reloadArtifacts)
	if err != nil {
		_ = mm.Shutdown(context.Background())
		_ = comp.Shutdown()
		return nil, err
	}
	m.reload = reload

	return m, nil
}

// reloadArtifacts re-scans the agent registry and recompiles the stage
// registry and graph, swapping them in atomically under Manager's lock.
// A run already in flight keeps the stage registry and graph it started
// with; the agent registry is reloaded in place, so its later agent
// lookups see the rebuilt agents.
func (m *Manager) reloadArtifacts() error {
	m.mu.RLock()
	ws := m.ws
	m.mu.RUnlock()

	if err := ws.Agents.ReloadAll(); err != nil {
		return err
	}

	stages, err := workspace.NewStageRegistry(filepath.Join(m.dir, "stage.json"))
	if err != nil {
		return err
	}
	if err := stages.ValidateAgents(ws.Agents); err != nil {
		return err
	}

	g := graph.New(stages, ws.Agents, m.hitl, m.log)

	m.mu.Lock()
	ws.Stages = stages
	m.graph = g
	m.mu.Unlock()

	m.log.Info("workspace artifacts reloaded", "workspace", ws.Name)
	return nil
}

// RunUserMessage is the spec §4.C11 session entrypoint: resolve or create
// a session, build its initial state, retrieve or create its orchestrator,
// and run it to completion.
func (m *Manager) RunUserMessage(ctx context.Context, msg, sessionID string) (*session.State, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.RLock()
	firstStage := m.firstStageLocked()
	m.mu.RUnlock()

	orch := m.orchestratorFor(sessionID)
	initial := session.New(sessionID, msg, firstStage)
	return orch.Run(ctx, initial)
}

func (m *Manager) firstStageLocked() string {
	if m.ws.Manifest.FirstStage != "" {
		return m.ws.Manifest.FirstStage
	}
	if fs := m.ws.Stages.FirstStage(); fs != nil {
		return fs.Name
	}
	return ""
}

// orchestratorFor returns the cached orchestrator for sessionID, building
// one if none exists yet, or rebuilding it if the workspace's graph has
// been recompiled since it was cached (an idle session between turns
// picks up a reload; a session with a run already in flight keeps the
// graph that run started with, since that run closed over its own graph
// reference independent of this cache).
func (m *Manager) orchestratorFor(sessionID string) *orchestrator.Orchestrator {
	m.mu.RLock()
	current := m.graph
	m.mu.RUnlock()

	m.sessMu.Lock()
	defer m.sessMu.Unlock()

	if entry, ok := m.sessions[sessionID]; ok && entry.graph == current {
		return entry.orch
	}

	orch := orchestrator.New(sessionID, current, m.bus, m.log)
	m.sessions[sessionID] = &sessionEntry{orch: orch, graph: current}
	return orch
}

// Close stops the artifact watcher and shuts down the model manager's
// reflection worker and every provider component.
func (m *Manager) Close() error {
	var firstErr error
	if m.reload != nil {
		if err := m.reload.Stop(); err != nil {
			firstErr = err
		}
	}
	if err := m.modelMgr.Shutdown(context.Background()); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.components.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
