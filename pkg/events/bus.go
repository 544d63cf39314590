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

// Package events implements the shared event bus (spec §6).
//
// The bus is a synchronous, in-process pub/sub: events are emitted in the
// order they occur in the driving coroutine and each subscriber runs to
// completion before the next event is dispatched to it (spec §5). The bus
// does not deduplicate, so subscribers must be idempotent.
package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Name enumerates the well-known event names from spec §6.
type Name string

const (
	OrchestratorStart Name = "orchestrator_start"
	OrchestratorEnd   Name = "orchestrator_end"
	GraphEvent        Name = "graph_event"
	AgentStart        Name = "agent_start"
	AgentDone         Name = "agent_done"
	AgentError        Name = "agent_error"
	ToolCall          Name = "tool_call"
	ToolResult        Name = "tool_result"
	ToolFailed        Name = "tool_failed"
	RewardAssigned    Name = "reward_assigned"
	StageEnter        Name = "stage_enter"
	StageExit         Name = "stage_exit"
)

// Event is the payload carried on the bus. Every event MUST include the
// emitting session and component (spec §6).
type Event struct {
	Name      Name
	SessionID string
	Component string
	Stage     string
	Agent     string
	Payload   map[string]any
}

// Handler receives events published on the bus.
type Handler func(Event)

// Bus is the process-wide event bus, shared across sessions (spec §5).
type Bus struct {
	mu       sync.Mutex
	handlers map[Name][]Handler
	all      []Handler

	counter *prometheus.CounterVec
}

// New creates an empty bus with a prometheus counter tracking event volume
// by name and component — the only metric the core itself exposes; richer
// dashboards are an external collaborator's concern (spec §1).
func New() *Bus {
	return &Bus{
		handlers: make(map[Name][]Handler),
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Total events emitted on the runtime event bus.",
		}, []string{"name", "component"}),
	}
}

// Collector exposes the bus's prometheus counter for registration with a
// prometheus.Registerer owned by an external collaborator (spec §1: metrics
// wiring beyond this counter is out of scope for the core).
func (b *Bus) Collector() prometheus.Collector {
	return b.counter
}

// Subscribe registers a handler for a specific event name.
func (b *Bus) Subscribe(name Name, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// SubscribeAll registers a handler invoked for every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Emit publishes an event synchronously: every matching handler runs to
// completion, in subscription order, before Emit returns.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	named := append([]Handler{}, b.handlers[e.Name]...)
	all := append([]Handler{}, b.all...)
	b.mu.Unlock()

	b.counter.WithLabelValues(string(e.Name), e.Component).Inc()

	for _, h := range named {
		h(e)
	}
	for _, h := range all {
		h(e)
	}
}
