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
	"sort"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/expr"
)

// Stage is a compiled stage.json entry: the exit_condition expression is
// parsed once at load time, never re-parsed per evaluation (spec §4.C8
// "exit_condition expressions are compiled once").
type Stage struct {
	Name          string
	AllowedAgents []string
	NextStages    []string
	Priority      int
	Terminal      bool
	ExitCondition *expr.Expr
}

// StageRegistry holds every stage of a workspace, ordered by ascending
// priority (spec §4.C8 "stages sorted by priority ascending").
type StageRegistry struct {
	stages []*Stage
	byName map[string]*Stage
}

// NewStageRegistry loads and compiles path (a stage.json file).
func NewStageRegistry(path string) (*StageRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "stage_registry", "failed to read stage manifest", err)
	}
	var file StageFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "stage_registry", "failed to parse stage manifest", err)
	}

	r := &StageRegistry{byName: map[string]*Stage{}}
	for _, m := range file.Stages {
		stage := &Stage{
			Name:          m.Name,
			AllowedAgents: m.AllowedAgents,
			NextStages:    m.NextStages,
			Priority:      m.Priority,
			Terminal:      m.Terminal,
		}
		if m.ExitCondition != "" {
			compiled, err := expr.Compile(m.ExitCondition)
			if err != nil {
				return nil, errs.Wrap(errs.KindRouterMisconfigured, "stage_registry",
					"stage "+m.Name+" has an invalid exit_condition", err)
			}
			stage.ExitCondition = compiled
		}
		if _, dup := r.byName[stage.Name]; dup {
			return nil, errs.New(errs.KindRouterMisconfigured, "stage_registry",
				"duplicate stage name: "+stage.Name)
		}
		r.byName[stage.Name] = stage
		r.stages = append(r.stages, stage)
	}

	sort.SliceStable(r.stages, func(i, j int) bool {
		return r.stages[i].Priority < r.stages[j].Priority
	})

	if len(r.stages) == 0 {
		return nil, errs.New(errs.KindRouterMisconfigured, "stage_registry", "stage manifest declares no stages")
	}

	if err := r.validateSuccessors(); err != nil {
		return nil, err
	}

	if err := r.validateNonTerminalHasAgents(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *StageRegistry) validateSuccessors() error {
	for _, s := range r.stages {
		for _, next := range s.NextStages {
			if _, ok := r.byName[next]; !ok {
				return errs.New(errs.KindRouterMisconfigured, "stage_registry",
					"stage "+s.Name+" declares unknown next_stage "+next)
			}
		}
	}
	return nil
}

// validateNonTerminalHasAgents rejects a non-terminal stage with no
// allowed_agents: nothing could ever advance a session out of it (spec
// §4.C8 "empty allowed_agents for a non-terminal stage fails graph
// build"). A terminal stage has no agent to run and is exempt.
func (r *StageRegistry) validateNonTerminalHasAgents() error {
	for _, s := range r.stages {
		if !s.Terminal && len(s.AllowedAgents) == 0 {
			return errs.New(errs.KindRouterMisconfigured, "stage_registry",
				"non-terminal stage "+s.Name+" declares no allowed_agents")
		}
	}
	return nil
}

// ValidateAgents checks every allowed_agent named by any stage is present
// in agents, failing the build otherwise (spec §4.C8 "every allowed_agent
// in every stage MUST exist in the agent registry at graph-build time;
// missing agents fail the build").
func (r *StageRegistry) ValidateAgents(agents *AgentRegistry) error {
	for _, s := range r.stages {
		for _, role := range s.AllowedAgents {
			if !agents.Exists(role) {
				return errs.New(errs.KindRouterMisconfigured, "stage_registry",
					"stage "+s.Name+" allows unknown agent role "+role)
			}
		}
	}
	return nil
}

// Get returns the named stage.
func (r *StageRegistry) Get(name string) (*Stage, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// ListStages returns every stage, in priority order.
func (r *StageRegistry) ListStages() []*Stage {
	out := make([]*Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// FirstStage returns the lowest-priority stage, the entry point of a new
// session's graph walk.
func (r *StageRegistry) FirstStage() *Stage {
	return r.stages[0]
}

// NextStage returns the stage immediately following current in priority
// order (the default, priority-order successor used when a stage
// lists no explicit next_stages).
func (r *StageRegistry) NextStage(current string) (*Stage, bool) {
	for i, s := range r.stages {
		if s.Name == current {
			if i+1 < len(r.stages) {
				return r.stages[i+1], true
			}
			return nil, false
		}
	}
	return nil, false
}

// AllowedAgents returns the roles permitted to run in the named stage.
func (r *StageRegistry) AllowedAgents(name string) []string {
	s, ok := r.byName[name]
	if !ok {
		return nil
	}
	return s.AllowedAgents
}

// IsTerminal reports whether the named stage is a terminal sentinel.
func (r *StageRegistry) IsTerminal(name string) bool {
	s, ok := r.byName[name]
	return ok && s.Terminal
}
