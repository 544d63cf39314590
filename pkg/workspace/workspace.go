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
	"os"
	"path/filepath"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/tool"
)

// Workspace bundles everything loaded from a single on-disk workspace
// directory (spec §6): its agent registry, stage registry, tool policy
// and tool catalog.
type Workspace struct {
	Dir     string
	Name    string
	Manifest Manifest
	Agents  *AgentRegistry
	Stages  *StageRegistry
	Policy  *tool.Policy
	Tools   *tool.Registry
}

// ReadManifest reads and parses dir/workspace.json on its own, ahead of a
// full Load — the runtime manager needs the provider-wiring block
// (Manifest.Models) to build an agent registry's Model/Memory
// dependencies before Load can run.
func ReadManifest(dir string) (Manifest, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(dir, "workspace.json"))
	if err != nil {
		return Manifest{}, errs.Wrap(errs.KindConfig, "workspace", "failed to read workspace manifest", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return Manifest{}, errs.Wrap(errs.KindConfig, "workspace", "failed to parse workspace manifest", err)
	}
	return manifest, nil
}

// Load reads workspace.json, stage.json, tools_policy.json and the tool
// catalog from dir, builds the agent registry using deps, and validates
// that every stage's allowed agents exist (spec §4.C8 validation step).
// toolCatalogPath may be empty when a workspace declares no tools.
func Load(dir string, deps AgentDeps, toolCatalogPath string) (*Workspace, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	policy, err := LoadToolsPolicy(filepath.Join(dir, "tools_policy.json"))
	if err != nil {
		return nil, err
	}

	var tools *tool.Registry
	if toolCatalogPath != "" {
		tools, err = LoadToolCatalog(toolCatalogPath)
		if err != nil {
			return nil, err
		}
	} else {
		tools = tool.NewRegistry()
	}

	deps.Tools = tool.NewGateway(tools, policy, deps.Bus)

	agents, err := NewAgentRegistry(dir, deps)
	if err != nil {
		return nil, err
	}

	stages, err := NewStageRegistry(filepath.Join(dir, "stage.json"))
	if err != nil {
		return nil, err
	}

	if err := stages.ValidateAgents(agents); err != nil {
		return nil, err
	}

	return &Workspace{
		Dir:      dir,
		Name:     manifest.Name,
		Manifest: manifest,
		Agents:   agents,
		Stages:   stages,
		Policy:   policy,
		Tools:    tools,
	}, nil
}

// Reload re-scans the agent registry in place (spec §5 "reloads swap the
// whole registry atomically"). It does not re-read stage.json or
// tools_policy.json.
func (w *Workspace) Reload() error {
	return w.Agents.ReloadAll()
}
