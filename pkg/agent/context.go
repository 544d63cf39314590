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

package agent

import (
	"context"
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/session"
	"github.com/loomrun/loom/pkg/store"
)

// ContextKind discriminates the context-entry variants of spec §4.C7 step 2.
// The source switches on a string "type" field at resolution time; here each
// kind is a distinct variant with its own typed parameters and its own
// resolver method, per REDESIGN FLAGS §9 ("duck-typed context resolution ->
// a tagged union of context-entry variants; resolution is a method-per-variant").
type ContextKind string

const (
	ContextKindState      ContextKind = "state"
	ContextKindMemory     ContextKind = "memory"
	ContextKindTextToSQL  ContextKind = "text_to_sql"
	ContextKindExternal   ContextKind = "external"
	ContextKindComputed   ContextKind = "computed"
	ContextKindText       ContextKind = "text"
)

// ContextEntry is one declared entry in an agent's context schema. Params
// carries the kind-specific fields as loaded from the manifest's JSON;
// each resolver decodes the subset it needs via mapstructure rather than
// every kind sharing one flat struct.
type ContextEntry struct {
	Name   string
	Kind   ContextKind
	Params map[string]any
}

type stateParams struct {
	Key string `mapstructure:"key"`
}

type memoryParams struct {
	MemoryType string   `mapstructure:"memory_type"` // "semantic" or "episodic"
	Key        string   `mapstructure:"key"`
	TopK       int      `mapstructure:"top_k"`
	Filter     map[string]string `mapstructure:"filter"`
}

type externalParams struct {
	Function string `mapstructure:"function"`
}

type textParams struct {
	Value string `mapstructure:"value"`
}

// ExternalFunc is a compile-time-registered function an "external" or
// "computed" context entry may name (spec §4.C7 step 2: the source
// dynamically imports a declared function; REDESIGN FLAGS replaces dynamic
// loading with compile-time registration into a typed map, selected by
// string key, same as the provider factories in store/embedder/llm).
type ExternalFunc func(ctx context.Context, state *session.State) (any, error)

// ExternalRegistry holds the named functions "external"/"computed" entries
// may reference.
type ExternalRegistry struct {
	funcs map[string]ExternalFunc
}

func NewExternalRegistry() *ExternalRegistry {
	return &ExternalRegistry{funcs: map[string]ExternalFunc{}}
}

func (r *ExternalRegistry) Register(name string, fn ExternalFunc) {
	r.funcs[name] = fn
}

func (r *ExternalRegistry) Get(name string) (ExternalFunc, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// contextResolver resolves one invocation's context entries in declaration
// order against the runtime's memory manager, state snapshot, and external
// function registry.
type contextResolver struct {
	mem   *memory.Manager
	ext   *ExternalRegistry
	log   *slog.Logger
}

// resolve walks entries in order, returning name -> resolved value. A
// failure resolving one entry is logged and leaves that entry nil; it
// never aborts resolution of the remaining entries (spec §4.C7 step 2).
func (r *contextResolver) resolve(ctx context.Context, entries []ContextEntry, ns store.Namespace, task string, stateMap map[string]any) map[string]any {
	out := make(map[string]any, len(entries))
	for _, entry := range entries {
		val, err := r.resolveOne(ctx, entry, ns, task, stateMap)
		if err != nil {
			r.log.Warn("context entry resolution failed, leaving entry null",
				"entry", entry.Name, "kind", entry.Kind, "error", err)
			out[entry.Name] = nil
			continue
		}
		out[entry.Name] = val
	}
	return out
}

func (r *contextResolver) resolveOne(ctx context.Context, entry ContextEntry, ns store.Namespace, task string, stateMap map[string]any) (any, error) {
	switch entry.Kind {
	case ContextKindState:
		var p stateParams
		if err := mapstructure.Decode(entry.Params, &p); err != nil {
			return nil, err
		}
		key := p.Key
		if key == "" {
			key = entry.Name
		}
		return stateMap[key], nil

	case ContextKindMemory:
		var p memoryParams
		if err := mapstructure.Decode(entry.Params, &p); err != nil {
			return nil, err
		}
		if p.MemoryType == "episodic" {
			key := p.Key
			if key == "" {
				key = entry.Name
			}
			items, err := r.mem.FetchEpisodes(ctx, ns, []string{key})
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, nil
			}
			return items[0].Value, nil
		}
		topK := p.TopK
		results, err := r.mem.RetrieveSemantic(ctx, ns, task, topK, p.Filter)
		if err != nil {
			return nil, err
		}
		return results, nil

	case ContextKindTextToSQL:
		// Interface specified only; natural-language-to-query translation
		// has no body in this implementation (spec §4.C7 step 2, "out of
		// scope for full body"). Resolution fails cleanly so the entry is
		// left null rather than panicking on an unimplemented path.
		return nil, errTextToSQLUnimplemented

	case ContextKindExternal, ContextKindComputed:
		var p externalParams
		if err := mapstructure.Decode(entry.Params, &p); err != nil {
			return nil, err
		}
		fn, ok := r.ext.Get(p.Function)
		if !ok {
			return nil, errUnknownExternalFunc(p.Function)
		}
		return fn(ctx, stateFromMap(stateMap))

	case ContextKindText:
		var p textParams
		if err := mapstructure.Decode(entry.Params, &p); err != nil {
			return nil, err
		}
		return p.Value, nil

	default:
		return nil, errUnknownContextKind(entry.Kind)
	}
}

// stateFromMap reconstructs the fields an ExternalFunc needs from the
// plain map a node already built for prompt rendering, so external/computed
// functions see the same shape as everything else without a second copy
// of State living in this package.
func stateFromMap(m map[string]any) *session.State {
	s := &session.State{}
	if v, ok := m["session_id"].(string); ok {
		s.SessionID = v
	}
	if v, ok := m["task"].(string); ok {
		s.Task = v
	}
	if v, ok := m["agent"].(string); ok {
		s.Agent = v
	}
	if v, ok := m["stage"].(string); ok {
		s.Stage = v
	}
	if v, ok := m["done"].(bool); ok {
		s.Done = v
	}
	return s
}
