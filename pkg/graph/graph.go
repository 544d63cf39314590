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

// Package graph implements the stage graph scheduler (spec §4.C9): a
// router node that picks the next agent role (or terminates), agent
// nodes that guard and run one agent, and a single-owner actor loop that
// streams routing events while applying every state change through
// session.Merge — the same channel semantics session.Delta documents.
package graph

import (
	"context"
	"log/slog"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/session"
	"github.com/loomrun/loom/pkg/workspace"
)

// EventType names one step of a Run's event stream.
type EventType string

const (
	EventRouted     EventType = "routed"
	EventStageEnter EventType = "stage_enter"
	EventStageExit  EventType = "stage_exit"
	EventAgentDone  EventType = "agent_done"
	EventAgentError EventType = "agent_error"
	EventTerminal   EventType = "terminal"
)

// Event is one step yielded by Run, grounded on the same
// channel-of-events shape team.Team.ExecuteStreaming uses to report
// workflow progress: a goroutine that owns execution end to end writes
// one Event per step to a buffered channel and closes it on completion.
type Event struct {
	Type  EventType
	Stage string
	Agent string
	Delta session.Delta
	Err   error
}

// Directive lets a human-in-the-loop callback pre-empt the router's
// default choice (spec §4.C9 step 6).
type Directive struct {
	NextAgent string
	SkipStage bool
}

// HumanInTheLoop inspects the router's candidate next agents for the
// current stage and may return a Directive overriding the default route.
// ok is false when the callback declines to intervene.
type HumanInTheLoop func(s *session.State, remaining []string) (d Directive, ok bool)

type routeKind int

const (
	routeAgent routeKind = iota
	routeReenter
	routeTerminal
)

type routeDecision struct {
	kind  routeKind
	role  string
	delta session.Delta
}

// Graph is the compiled stage graph for one workspace: a router over a
// stage registry plus the agent registry it dispatches into.
type Graph struct {
	stages *workspace.StageRegistry
	agents *workspace.AgentRegistry
	hitl   HumanInTheLoop
	log    *slog.Logger
}

// New compiles a Graph from a workspace's registries. hitl may be nil.
func New(stages *workspace.StageRegistry, agents *workspace.AgentRegistry, hitl HumanInTheLoop, log *slog.Logger) *Graph {
	if log == nil {
		log = slog.Default()
	}
	return &Graph{stages: stages, agents: agents, hitl: hitl, log: log}
}

// Run streams one session through the graph starting from initial,
// mutating a snapshot of it in place (Run's goroutine is the sole owner
// of that snapshot for the lifetime of the run) and yielding one Event
// per router/agent step until a terminal route is reached, the state
// signals done, or ctx is cancelled.
func (g *Graph) Run(ctx context.Context, initial *session.State) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)
		s := initial.Snapshot()

		for {
			if err := ctx.Err(); err != nil {
				out <- Event{Type: EventAgentError, Stage: s.Stage, Err: err}
				return
			}

			decision, err := g.route(s)
			if err != nil {
				out <- Event{Type: EventAgentError, Stage: s.Stage, Err: err}
				return
			}

			prevStage := s.Stage
			session.Merge(s, decision.delta)
			out <- Event{Type: EventRouted, Stage: s.Stage, Agent: decision.role, Delta: decision.delta}

			if decision.delta.Stage != nil && *decision.delta.Stage != prevStage {
				out <- Event{Type: EventStageExit, Stage: prevStage}
				out <- Event{Type: EventStageEnter, Stage: *decision.delta.Stage}
			}

			switch decision.kind {
			case routeTerminal:
				out <- Event{Type: EventTerminal, Stage: s.Stage}
				return

			case routeReenter:
				continue

			case routeAgent:
				agentDelta, err := g.runAgentNode(ctx, s, decision.role)
				if err != nil {
					session.Merge(s, agentDelta)
					out <- Event{Type: EventAgentError, Stage: s.Stage, Agent: decision.role, Err: err}
					return
				}
				session.Merge(s, agentDelta)
				out <- Event{Type: EventAgentDone, Stage: s.Stage, Agent: decision.role, Delta: agentDelta}
			}
		}
	}()

	return out
}

// route implements the router algorithm of spec §4.C9: pick the first
// not-yet-executed allowed agent for the current stage, or — once every
// allowed agent has run — evaluate the stage's exit condition to decide
// between advancing, terminating, or (safety) terminating on a
// misconfigured stage that never satisfies its own exit condition.
func (g *Graph) route(s *session.State) (routeDecision, error) {
	stage, ok := g.stages.Get(s.Stage)
	if !ok {
		return routeDecision{}, errs.New(errs.KindRouterMisconfigured, "graph", "unknown stage "+s.Stage)
	}

	executed := s.ExecutedAgentsPerStage[stage.Name]
	executedSet := make(map[string]bool, len(executed))
	for _, r := range executed {
		executedSet[r] = true
	}
	var remaining []string
	for _, role := range stage.AllowedAgents {
		if !executedSet[role] {
			remaining = append(remaining, role)
		}
	}

	if g.hitl != nil {
		if d, ok := g.hitl(s, remaining); ok {
			return g.applyDirective(s, stage, d)
		}
	}

	if len(remaining) > 0 {
		role := remaining[0]
		return routeDecision{kind: routeAgent, role: role, delta: session.Delta{NextAgent: &role}}, nil
	}

	return g.evaluateExit(s, stage)
}

func (g *Graph) applyDirective(s *session.State, stage *workspace.Stage, d Directive) (routeDecision, error) {
	if d.NextAgent != "" {
		role := d.NextAgent
		return routeDecision{kind: routeAgent, role: role, delta: session.Delta{NextAgent: &role}}, nil
	}
	if d.SkipStage {
		return g.evaluateExit(s, stage)
	}
	return routeDecision{kind: routeTerminal}, nil
}

func (g *Graph) evaluateExit(s *session.State, stage *workspace.Stage) (routeDecision, error) {
	if stage.ExitCondition == nil {
		// No exit_condition configured and no agents left to run: the
		// stage can never legitimately finish, so stop rather than loop.
		return routeDecision{kind: routeTerminal}, nil
	}

	// State fields are reachable both bare (history_agents) and under a
	// state root (state.history_agents).
	vars := s.ToMap()
	vars["state"] = s.ToMap()
	matched, err := stage.ExitCondition.Eval(vars)
	if err != nil {
		return routeDecision{}, errs.Wrap(errs.KindRouterMisconfigured, "graph",
			"exit_condition evaluation failed for stage "+stage.Name, err)
	}
	if !matched {
		return routeDecision{kind: routeTerminal}, nil
	}

	next, hasNext := g.successor(stage)
	if stage.Terminal || !hasNext {
		done := true
		return routeDecision{kind: routeTerminal, delta: session.Delta{Done: &done}}, nil
	}

	nextName := next.Name
	return routeDecision{kind: routeReenter, delta: session.Delta{Stage: &nextName}}, nil
}

// successor resolves a stage's next stage: an explicit next_stages list
// names it; an empty list falls back to priority-order succession (the
// registry's default ordering).
func (g *Graph) successor(stage *workspace.Stage) (*workspace.Stage, bool) {
	if len(stage.NextStages) > 0 {
		return g.stages.Get(stage.NextStages[0])
	}
	return g.stages.NextStage(stage.Name)
}

// runAgentNode is the agent node of spec §4.C9: it guards against a role
// no longer allowed in the current stage (defensive — route already only
// selects allowed roles, but the graph is the single owner of s.Agent and
// this keeps that invariant enforced at the one place it's set) and
// otherwise hands off to the agent's own Run.
func (g *Graph) runAgentNode(ctx context.Context, s *session.State, role string) (session.Delta, error) {
	stage, ok := g.stages.Get(s.Stage)
	if !ok {
		return session.Delta{}, errs.New(errs.KindRouterMisconfigured, "graph", "unknown stage "+s.Stage)
	}
	if !containsString(stage.AllowedAgents, role) {
		g.log.Warn("agent node guard rejected dispatch", "role", role, "stage", s.Stage)
		return session.Delta{}, nil
	}

	s.Agent = role
	a, ok := g.agents.Get(role)
	if !ok {
		return session.Delta{}, errs.New(errs.KindRouterMisconfigured, "graph", "no agent registered for role "+role)
	}
	return a.Run(ctx, s)
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
