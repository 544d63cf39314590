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

// Package session defines the single object threaded through one workflow
// (spec §3): State, the append-only history it carries, and Delta, the
// message shape a graph node sends back to the session actor.
//
// This package intentionally has no dependency on agent/workspace/graph —
// it sits below all of them so each can depend on it without a cycle.
package session

// HistoryEntry records one agent invocation (spec §3, and the Open
// Question decision in SPEC_FULL.md #3: the rendered prompt travels
// alongside the output so later audits don't need to replay rendering).
type HistoryEntry struct {
	Stage  string `json:"stage"`
	Role   string `json:"role"`
	Prompt string `json:"prompt,omitempty"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// State is the single object threaded through one workflow run (spec §3).
// Apart from the Agent marker, which the graph sets on its own working
// copy before each agent node runs, it is never mutated directly by agent
// or router code — all writes arrive
// as a Delta that the graph's session actor merges under the channel rules
// of §4.C9 (the "message-passing between concurrent writers" REDESIGN FLAG
// resolved as a single-owner actor applying typed reducers sequentially).
type State struct {
	SessionID string
	Task      string
	Agent     string
	Stage     string
	Done      bool

	HistoryAgents          []HistoryEntry
	ExecutedAgentsPerStage map[string][]string
	Rewards                map[string]float64

	// NextAgent is transient: set by the router's delta, consumed by the
	// graph's edge-selection function, never read by agent nodes.
	NextAgent string
}

// New builds the initial state for a session (spec §4.C11 step 2).
func New(sessionID, task, firstStage string) *State {
	return &State{
		SessionID:              sessionID,
		Task:                   task,
		Stage:                  firstStage,
		Done:                   false,
		HistoryAgents:          []HistoryEntry{},
		ExecutedAgentsPerStage: map[string][]string{},
		Rewards:                map[string]float64{},
	}
}

// Snapshot returns a deep copy, safe to hand to a node as read-only input
// while the session actor continues to own the canonical State.
func (s *State) Snapshot() *State {
	cp := &State{
		SessionID: s.SessionID,
		Task:      s.Task,
		Agent:     s.Agent,
		Stage:     s.Stage,
		Done:      s.Done,
		NextAgent: s.NextAgent,
	}
	cp.HistoryAgents = append([]HistoryEntry{}, s.HistoryAgents...)
	cp.ExecutedAgentsPerStage = make(map[string][]string, len(s.ExecutedAgentsPerStage))
	for k, v := range s.ExecutedAgentsPerStage {
		cp.ExecutedAgentsPerStage[k] = append([]string{}, v...)
	}
	cp.Rewards = make(map[string]float64, len(s.Rewards))
	for k, v := range s.Rewards {
		cp.Rewards[k] = v
	}
	return cp
}

// ToMap renders the state as a plain map for expr.Expr evaluation — the
// only view of State that exit_condition expressions are allowed to see.
func (s *State) ToMap() map[string]any {
	executed := make(map[string]any, len(s.ExecutedAgentsPerStage))
	for k, v := range s.ExecutedAgentsPerStage {
		roles := make([]any, len(v))
		for i, r := range v {
			roles[i] = r
		}
		executed[k] = roles
	}
	rewards := make(map[string]any, len(s.Rewards))
	for k, v := range s.Rewards {
		rewards[k] = v
	}
	return map[string]any{
		"session_id":                s.SessionID,
		"task":                      s.Task,
		"agent":                     s.Agent,
		"stage":                     s.Stage,
		"done":                      s.Done,
		"history_agents":            historyToAny(s.HistoryAgents),
		"executed_agents_per_stage": executed,
		"rewards":                   rewards,
	}
}

func historyToAny(h []HistoryEntry) []any {
	out := make([]any, len(h))
	for i, e := range h {
		out[i] = map[string]any{
			"stage":  e.Stage,
			"role":   e.Role,
			"output": e.Output,
		}
	}
	return out
}

// Delta is the message shape every node (router or agent) sends back to
// the session actor. Only non-nil/non-empty fields are applied — this is
// how the typed channels of spec §4.C9 are represented as plain data.
type Delta struct {
	Stage     *string
	Done      *bool
	NextAgent *string

	HistoryAgents []HistoryEntry

	// ExecutedAgentsPerStage maps stage -> roles to append (reducer: concat).
	ExecutedAgentsPerStage map[string][]string

	// Rewards maps role -> amount to add (reducer: numeric sum).
	Rewards map[string]float64
}

// Merge applies d to s under the channel semantics of spec §4.C9. It is the
// session actor's one job — the only place State's channel fields are
// ever written.
func Merge(s *State, d Delta) {
	if d.Stage != nil {
		s.Stage = *d.Stage
	}
	if d.Done != nil {
		s.Done = *d.Done
	}
	if d.NextAgent != nil {
		s.NextAgent = *d.NextAgent
	}
	if len(d.HistoryAgents) > 0 {
		s.HistoryAgents = append(s.HistoryAgents, d.HistoryAgents...)
	}
	for stage, roles := range d.ExecutedAgentsPerStage {
		s.ExecutedAgentsPerStage[stage] = append(s.ExecutedAgentsPerStage[stage], roles...)
	}
	for role, amount := range d.Rewards {
		s.Rewards[role] += amount
	}
}
