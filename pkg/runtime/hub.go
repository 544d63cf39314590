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

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/graph"
)

// HubConfig configures a Hub's shared collaborators, threaded into every
// Manager it constructs.
type HubConfig struct {
	Bus             *events.Bus
	Log             *slog.Logger
	ToolCatalogPath string
	HITL            graph.HumanInTheLoop
}

// Hub discovers workspaces under a root directory and constructs (and
// caches) one Manager per workspace on demand (spec §4.C11). Per the
// REDESIGN FLAGS decision against module-global singletons, Hub is a
// plain constructed value — the caller (cmd/loom) builds one at startup
// and threads it through, rather than reaching for a package-level var.
type Hub struct {
	root string
	cfg  HubConfig

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewHub builds a Hub rooted at root (one subdirectory per workspace).
func NewHub(root string, cfg HubConfig) *Hub {
	if cfg.Bus == nil {
		cfg.Bus = events.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Hub{root: root, cfg: cfg, managers: map[string]*Manager{}}
}

// List returns the names of every workspace directory under the hub's
// root — any immediate subdirectory containing a workspace.json manifest.
func (h *Hub) List() ([]string, error) {
	entries, err := os.ReadDir(h.root)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "runtime", "failed to scan workspace hub root", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, statErr := os.Stat(filepath.Join(h.root, e.Name(), "workspace.json")); statErr == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the runtime manager for the named workspace, constructing
// and caching it on first access.
func (h *Hub) Get(ctx context.Context, name string) (*Manager, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.managers[name]; ok {
		return m, nil
	}

	dir := filepath.Join(h.root, name)
	if _, err := os.Stat(filepath.Join(dir, "workspace.json")); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "runtime", "workspace "+name+" not found under hub root", err)
	}

	m, err := NewManager(ctx, dir, ManagerConfig{
		Bus:             h.cfg.Bus,
		Log:             h.cfg.Log,
		ToolCatalogPath: h.cfg.ToolCatalogPath,
		HITL:            h.cfg.HITL,
	})
	if err != nil {
		return nil, err
	}

	h.managers[name] = m
	return m, nil
}

// Close shuts down every runtime manager the hub has constructed so far.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, m := range h.managers {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("workspace %s: %w", name, err)
		}
	}
	return firstErr
}
