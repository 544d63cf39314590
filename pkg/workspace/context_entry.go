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

	"github.com/loomrun/loom/pkg/agent"
)

// ContextEntryManifest is one entry in context.json:
// { name, type, ...type-specific fields }. The type-specific fields vary
// per kind (spec §4.C7 step 2), so this type keeps the whole decoded
// object and hands the non-reserved keys to agent.ContextEntry as Params.
type ContextEntryManifest struct {
	Name   string
	Type   string
	Params map[string]any
}

func (c *ContextEntryManifest) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	name, _ := raw["name"].(string)
	kind, _ := raw["type"].(string)
	delete(raw, "name")
	delete(raw, "type")

	c.Name = name
	c.Type = kind
	c.Params = raw
	return nil
}

// ToAgentEntry converts the manifest shape into the runtime tagged-union
// value agent.contextResolver consumes.
func (c ContextEntryManifest) ToAgentEntry() agent.ContextEntry {
	return agent.ContextEntry{
		Name:   c.Name,
		Kind:   agent.ContextKind(c.Type),
		Params: c.Params,
	}
}
