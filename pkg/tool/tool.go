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

// Package tool implements the policy-checked tool gateway (spec §4.C6):
// a registry of callable tools fronted by a role-based policy, where a
// denied call never surfaces as an error to the caller.
package tool

import "context"

// Tool is a named, schema-described capability an agent can invoke.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Call is an LLM's request to invoke a tool.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is the outcome of dispatching a Call through the gateway. Denied
// is true when the acting role's policy disallows the tool; Result in that
// case is always the empty map, never an error, per spec §4.C6 ("denial is
// representable, not exceptional").
type Result struct {
	ToolCallID string
	Content    map[string]any
	Denied     bool
	Error      string
}
