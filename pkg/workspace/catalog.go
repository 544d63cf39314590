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

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/tool"
)

// LoadToolsPolicy reads a tools_policy.json file and builds a tool.Policy
// from it (spec §6 workspace contract).
func LoadToolsPolicy(path string) (*tool.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "catalog", "failed to read tools policy", err)
	}
	var file ToolsPolicyFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "catalog", "failed to parse tools policy", err)
	}
	return tool.NewPolicy(file.Rules()), nil
}

// ToolFactory builds a tool.Tool from its catalog spec. Factories are
// registered at compile time by entrypoint name, rather than dynamically
// imported, mirroring agent.ExternalRegistry's handling of the "external"
// and "computed" context-entry kinds (REDESIGN FLAGS §9).
type ToolFactory func(spec map[string]any) (tool.Tool, error)

// ToolFactories is the process-wide map of entrypoint name to constructor.
// A binary registers its tool implementations here during init.
var ToolFactories = map[string]ToolFactory{}

// RegisterToolFactory adds a named constructor to ToolFactories. Intended
// to be called from an init() in the package that implements the tool.
func RegisterToolFactory(entrypoint string, factory ToolFactory) {
	ToolFactories[entrypoint] = factory
}

// LoadToolCatalog reads a tool catalog file and builds a populated
// tool.Registry, resolving each entry's entrypoint against ToolFactories.
func LoadToolCatalog(path string) (*tool.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "catalog", "failed to read tool catalog", err)
	}
	var file ToolCatalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "catalog", "failed to parse tool catalog", err)
	}

	reg := tool.NewRegistry()
	for _, entry := range file.Tools {
		factory, ok := ToolFactories[entry.Entrypoint]
		if !ok {
			return nil, errs.New(errs.KindConfig, "catalog",
				"tool "+entry.Name+" references unregistered entrypoint "+entry.Entrypoint)
		}
		t, err := factory(entry.Spec)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "catalog", "failed to construct tool "+entry.Name, err)
		}
		if err := reg.Register(t); err != nil {
			return nil, errs.Wrap(errs.KindConfig, "catalog", "failed to register tool "+entry.Name, err)
		}
	}
	return reg, nil
}
