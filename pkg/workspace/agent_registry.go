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

package workspace

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/loomrun/loom/pkg/agent"
	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/model"
	"github.com/loomrun/loom/pkg/tool"
)

// AgentDeps are the platform-level collaborators every agent in a
// workspace shares (spec §9 "flatten cyclic references into platform-level
// constructor-injected dependencies").
type AgentDeps struct {
	Model    *model.Manager
	Memory   *memory.Manager
	Tools    *tool.Gateway
	External *agent.ExternalRegistry
	Bus      *events.Bus
	Log      *slog.Logger
}

// AgentRegistry scans <workspace>/agents/<role>/ for one manifest per
// directory and exposes it by role (spec §4.C8 agent registry).
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	dir    string
	deps   AgentDeps
	log    *slog.Logger
}

// NewAgentRegistry builds and populates an AgentRegistry from
// <workspaceDir>/agents.
func NewAgentRegistry(workspaceDir string, deps AgentDeps) (*AgentRegistry, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	r := &AgentRegistry{
		agents: map[string]*agent.Agent{},
		dir:    filepath.Join(workspaceDir, "agents"),
		deps:   deps,
		log:    log,
	}
	if err := r.ReloadAll(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the agent for role, if registered.
func (r *AgentRegistry) Get(role string) (*agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[role]
	return a, ok
}

// All returns every registered agent, sorted by role for deterministic
// iteration.
func (r *AgentRegistry) All() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]string, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	out := make([]*agent.Agent, len(roles))
	for i, role := range roles {
		out[i] = r.agents[role]
	}
	return out
}

// Roles lists every registered role, sorted.
func (r *AgentRegistry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]string, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Exists reports whether role is registered.
func (r *AgentRegistry) Exists(role string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[role]
	return ok
}

// ReloadAll re-scans the workspace's agents directory and swaps the whole
// map atomically under the registry's lock: lookups made before the swap
// see the old set, lookups after it see the rebuilt set, whichever session
// makes them (spec §5 "reloads swap the whole registry atomically").
func (r *AgentRegistry) ReloadAll() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "agent_registry", "failed to read agents directory", err)
	}

	fresh := make(map[string]*agent.Agent, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		a, role, err := r.loadOne(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return err
		}
		if _, dup := fresh[role]; dup {
			r.log.Warn("duplicate agent role, overwriting", "role", role, "directory", entry.Name())
		}
		fresh[role] = a
	}

	r.mu.Lock()
	r.agents = fresh
	r.mu.Unlock()
	return nil
}

func (r *AgentRegistry) loadOne(dir string) (*agent.Agent, string, error) {
	skillBytes, err := os.ReadFile(filepath.Join(dir, "skill.json"))
	if err != nil {
		return nil, "", errs.Wrap(errs.KindConfig, "agent_registry", "failed to read skill.json", err)
	}
	var skill SkillManifest
	if err := json.Unmarshal(skillBytes, &skill); err != nil {
		return nil, "", errs.Wrap(errs.KindConfig, "agent_registry", "failed to parse skill.json", err)
	}

	contextBytes, err := os.ReadFile(filepath.Join(dir, "context.json"))
	if err != nil {
		return nil, "", errs.Wrap(errs.KindConfig, "agent_registry", "failed to read context.json", err)
	}
	var contextFile ContextFile
	if err := json.Unmarshal(contextBytes, &contextFile); err != nil {
		return nil, "", errs.Wrap(errs.KindConfig, "agent_registry", "failed to parse context.json", err)
	}

	promptBytes, err := os.ReadFile(filepath.Join(dir, "prompt.md"))
	if err != nil {
		return nil, "", errs.Wrap(errs.KindConfig, "agent_registry", "failed to read prompt.md", err)
	}

	var outputSchema map[string]any
	schemaPath := filepath.Join(dir, "schema.json")
	if schemaBytes, err := os.ReadFile(schemaPath); err == nil {
		if err := json.Unmarshal(schemaBytes, &outputSchema); err != nil {
			return nil, "", errs.Wrap(errs.KindConfig, "agent_registry", "failed to parse schema.json", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", errs.Wrap(errs.KindConfig, "agent_registry", "failed to read schema.json", err)
	}

	entries := make([]agent.ContextEntry, len(contextFile.Context))
	for i, e := range contextFile.Context {
		entries[i] = e.ToAgentEntry()
	}

	tools := make([]agent.ToolTrigger, len(skill.Tools))
	for i, t := range skill.Tools {
		tools[i] = agent.ToolTrigger{Name: t.Name, Trigger: t.Trigger}
	}

	manifest := agent.Manifest{
		Role:           skill.Role,
		PromptTemplate: string(promptBytes),
		ContextSchema:  entries,
		OutputMode:     skill.OutputMode,
		OutputSchema:   outputSchema,
		Tools:          tools,
	}

	a, err := agent.New(manifest, r.deps.Model, r.deps.Memory, r.deps.Tools, r.deps.External, r.deps.Bus, r.log)
	if err != nil {
		return nil, "", err
	}
	return a, skill.Role, nil
}
