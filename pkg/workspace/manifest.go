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

// Package workspace implements the registries of spec §4.C8 and the
// on-disk workspace contract of spec §6: a plain encoding/json file format,
// not a general configuration layer (see SPEC_FULL.md's AMBIENT STACK
// section — that distinction is deliberate).
package workspace

// Manifest is workspace.json, the top-level descriptor of a workspace.
type Manifest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FirstStage  string `json:"first_stage,omitempty"`

	// Models is the "model manager configuration" of spec §6: which
	// provider alias is active for each backend kind, and where the
	// koanf-loaded catalogs naming those aliases live (paths relative to
	// this workspace's directory unless absolute).
	Models ModelManagerConfig `json:"models"`
}

// ModelManagerConfig identifies the active chat/embedding/store provider
// for a workspace and points at the three provider-config catalogs those
// aliases are looked up in, plus the memory and model managers' tuning
// knobs (spec §6: "identifies the chat provider, embedding provider,
// store provider, and points at three provider-config files").
type ModelManagerConfig struct {
	ChatProvider      string `json:"chat_provider"`
	EmbeddingProvider string `json:"embedding_provider,omitempty"`
	StoreProvider     string `json:"store_provider,omitempty"`

	ChatModelCatalog string `json:"chat_model_catalog"`
	EmbeddingCatalog string `json:"embedding_catalog,omitempty"`
	StoreCatalog     string `json:"store_catalog,omitempty"`

	RecallLimit    int `json:"recall_limit,omitempty"`
	DecayThreshold int `json:"decay_threshold,omitempty"`

	TopK                   int `json:"top_k,omitempty"`
	ReflectionQueueSize    int `json:"reflection_queue_size,omitempty"`
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds,omitempty"`
}

// StageFile is the decoded shape of stage.json (spec §6).
type StageFile struct {
	Stages []StageManifest `json:"stages"`
}

// StageManifest is one entry in stage.json, before its exit_condition is
// compiled (spec §4.C8 stage registry).
type StageManifest struct {
	Name          string   `json:"name"`
	AllowedAgents []string `json:"allowed_agents"`
	NextStages    []string `json:"next_stages,omitempty"`
	Priority      int      `json:"priority"`
	Terminal      bool     `json:"terminal,omitempty"`
	ExitCondition string   `json:"exit_condition,omitempty"`
}

// ToolsPolicyFile is the decoded shape of tools_policy.json (spec §6):
// { agents: { <role>: { tools: [<name>, ...] } } }.
type ToolsPolicyFile struct {
	Agents map[string]struct {
		Tools []string `json:"tools"`
	} `json:"agents"`
}

// Rules flattens the file into the role->tool-names map tool.NewPolicy
// expects.
func (f ToolsPolicyFile) Rules() map[string][]string {
	out := make(map[string][]string, len(f.Agents))
	for role, entry := range f.Agents {
		out[role] = entry.Tools
	}
	return out
}

// SkillManifest is agents/<role>/skill.json (spec §6).
type SkillManifest struct {
	Role       string                `json:"role"`
	OutputMode string                `json:"output_mode,omitempty"`
	Tools      []ToolTriggerManifest `json:"tools,omitempty"`
}

// ToolTriggerManifest is one entry in a skill manifest's tools list.
type ToolTriggerManifest struct {
	Name    string `json:"name"`
	Trigger string `json:"trigger"`
}

// ContextFile is agents/<role>/context.json (spec §6).
type ContextFile struct {
	Context []ContextEntryManifest `json:"context"`
}

// ToolCatalogEntry is one entry in the platform-level tool catalog (spec
// §6: "a platform-level JSON file listing {name, description, entrypoint,
// spec} per tool"). entrypoint names a compile-time-registered constructor
// rather than a dynamically-imported module/class string, per REDESIGN
// FLAGS §9.
type ToolCatalogEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Entrypoint  string         `json:"entrypoint"`
	Spec        map[string]any `json:"spec,omitempty"`
}

// ToolCatalogFile is the decoded shape of the tool catalog file.
type ToolCatalogFile struct {
	Tools []ToolCatalogEntry `json:"tools"`
}
