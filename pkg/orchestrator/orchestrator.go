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

// Package orchestrator implements the per-session driver of spec §4.C10:
// it streams a session's state through a compiled graph, mirrors every
// graph step onto the event bus, and accumulates the resulting deltas
// into a final state it alone owns and returns.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/graph"
	"github.com/loomrun/loom/pkg/session"
)

// Orchestrator drives one session through its workspace's compiled graph.
type Orchestrator struct {
	sessionID string
	graph     *graph.Graph
	bus       *events.Bus
	log       *slog.Logger
}

// New builds an Orchestrator bound to one session and its workspace's
// compiled graph (spec §4.C10 "one orchestrator per session").
func New(sessionID string, g *graph.Graph, bus *events.Bus, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{sessionID: sessionID, graph: g, bus: bus, log: log}
}

// Run streams initial through the compiled graph to completion, applying
// every yielded delta via session.Merge onto a final state that this call
// alone owns and returns (spec §4.C10 steps 1-6).
func (o *Orchestrator) Run(ctx context.Context, initial *session.State) (*session.State, error) {
	o.emit(events.OrchestratorStart, initial, "")

	final := initial.Snapshot()
	var runErr error

	for ev := range o.graph.Run(ctx, initial) {
		o.emitGraphEvent(ev)

		session.Merge(final, ev.Delta)

		if ev.Err != nil {
			o.log.Error("graph step failed", "session_id", o.sessionID, "stage", ev.Stage, "agent", ev.Agent, "error", ev.Err)
			runErr = ev.Err

			// A failure is still a terminal outcome (spec §4.C10 "the
			// orchestrator always returns a final state — even failures
			// produce a terminal state with done=true and the failure
			// captured in history_agents or an error field").
			done := true
			failure := session.HistoryEntry{Stage: ev.Stage, Role: ev.Agent, Error: ev.Err.Error()}
			session.Merge(final, session.Delta{Done: &done, HistoryAgents: []session.HistoryEntry{failure}})
			o.emit(events.AgentError, final, ev.Err.Error())
			continue
		}

		if ev.Type == graph.EventStageExit {
			o.emit(events.StageExit, final, "")
		}
		if ev.Type == graph.EventStageEnter {
			o.emit(events.StageEnter, final, "")
		}
	}

	o.emit(events.OrchestratorEnd, final, "")
	return final, runErr
}

func (o *Orchestrator) emitGraphEvent(ev graph.Event) {
	if o.bus == nil {
		return
	}
	payload := map[string]any{"type": string(ev.Type)}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}
	o.bus.Emit(events.Event{
		Name:      events.GraphEvent,
		SessionID: o.sessionID,
		Component: "orchestrator",
		Stage:     ev.Stage,
		Agent:     ev.Agent,
		Payload:   payload,
	})
}

func (o *Orchestrator) emit(name events.Name, s *session.State, errText string) {
	if o.bus == nil {
		return
	}
	payload := map[string]any{}
	if errText != "" {
		payload["error"] = errText
	}
	o.bus.Emit(events.Event{
		Name:      name,
		SessionID: o.sessionID,
		Component: "orchestrator",
		Stage:     s.Stage,
		Payload:   payload,
	})
}
