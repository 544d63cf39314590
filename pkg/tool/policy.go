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

package tool

// Policy maps an agent role to the set of tool names it may call. A role
// absent from the map is denied everything; an explicit "*" entry in a
// role's set allows every registered tool (spec §4.C6 default-deny).
type Policy struct {
	allowed map[string]map[string]bool
}

// NewPolicy builds a Policy from a role -> allowed-tool-names map, as
// loaded from a workspace's tools_policy.json (spec §6 workspace contract).
func NewPolicy(rules map[string][]string) *Policy {
	p := &Policy{allowed: make(map[string]map[string]bool, len(rules))}
	for role, names := range rules {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		p.allowed[role] = set
	}
	return p
}

// Allows reports whether role may call the named tool.
func (p *Policy) Allows(role, toolName string) bool {
	set, ok := p.allowed[role]
	if !ok {
		return false
	}
	if set["*"] {
		return true
	}
	return set[toolName]
}
