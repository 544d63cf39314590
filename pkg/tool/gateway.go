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

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/registry"
)

var tracer = otel.Tracer("github.com/loomrun/loom/pkg/tool")

// Registry holds the tools a workspace makes available, independent of
// which roles may call them.
type Registry struct {
	base *registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Tool]()}
}

func (r *Registry) Register(t Tool) error { return r.base.Register(t.Name(), t) }
func (r *Registry) Get(name string) (Tool, bool) { return r.base.Get(name) }
func (r *Registry) List() []Tool                 { return r.base.List() }

// Gateway is the single entry point agents use to invoke tools: every call
// is checked against a Policy before it reaches the registry, and every
// call is announced on the event bus regardless of outcome.
type Gateway struct {
	tools  *Registry
	policy *Policy
	bus    *events.Bus
}

func NewGateway(tools *Registry, policy *Policy, bus *events.Bus) *Gateway {
	return &Gateway{tools: tools, policy: policy, bus: bus}
}

// Invoke dispatches call on behalf of role. A policy denial returns a
// Result with Denied=true and an empty Content map — never an error —
// so an agent's tool loop can feed the denial back to the model as a
// normal tool result rather than aborting the turn (spec §4.C6, §7).
func (g *Gateway) Invoke(ctx context.Context, sessionID, stage, role string, call Call) Result {
	ctx, span := tracer.Start(ctx, "tool.Invoke", trace.WithAttributes(
		attribute.String("loom.session_id", sessionID),
		attribute.String("loom.stage", stage),
		attribute.String("loom.agent_role", role),
		attribute.String("loom.tool", call.Name),
	))
	defer span.End()

	if !g.policy.Allows(role, call.Name) {
		g.emit(sessionID, stage, role, events.ToolFailed, call, nil, "denied")
		span.SetStatus(codes.Error, "denied by policy")
		return Result{ToolCallID: call.ID, Content: map[string]any{}, Denied: true}
	}

	t, ok := g.tools.Get(call.Name)
	if !ok {
		err := fmt.Sprintf("tool %q is not registered", call.Name)
		g.emit(sessionID, stage, role, events.ToolFailed, call, nil, err)
		span.SetStatus(codes.Error, err)
		return Result{ToolCallID: call.ID, Content: map[string]any{}, Error: err}
	}

	g.emit(sessionID, stage, role, events.ToolCall, call, nil, "")

	out, err := t.Call(ctx, call.Args)
	if err != nil {
		wrapped := errs.Wrap(errs.KindTool, "tool_gateway", "tool call failed", err)
		g.emit(sessionID, stage, role, events.ToolFailed, call, nil, wrapped.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool call failed")
		return Result{ToolCallID: call.ID, Content: map[string]any{}, Error: wrapped.Error()}
	}

	g.emit(sessionID, stage, role, events.ToolResult, call, out, "")
	span.SetStatus(codes.Ok, "")
	return Result{ToolCallID: call.ID, Content: out}
}

func (g *Gateway) emit(sessionID, stage, role string, name events.Name, call Call, out map[string]any, errText string) {
	if g.bus == nil {
		return
	}
	payload := map[string]any{"tool": call.Name, "args": call.Args}
	if out != nil {
		payload["result"] = out
	}
	if errText != "" {
		payload["error"] = errText
	}
	g.bus.Emit(events.Event{
		Name:      name,
		SessionID: sessionID,
		Component: "tool_gateway",
		Stage:     stage,
		Agent:     role,
		Payload:   payload,
	})
}
