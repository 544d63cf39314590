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

// Package agent implements the agent (skill) execution unit (spec §4.C7):
// one stateless invocation of one role within one stage. All state lives
// in the session.State the caller owns; Run never mutates it directly,
// only returns a session.Delta for the graph's session actor to apply.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/model"
	"github.com/loomrun/loom/pkg/session"
	"github.com/loomrun/loom/pkg/store"
	"github.com/loomrun/loom/pkg/tool"
)

const outputModeJSON = "json"

var tracer = otel.Tracer("github.com/loomrun/loom/pkg/agent")

// ToolTrigger is one tool a manifest wires to this agent; "always" is the
// only trigger this implementation dispatches (spec §4.C7 step 6 names
// only the unconditional case).
type ToolTrigger struct {
	Name    string
	Trigger string
}

// Manifest is everything an agent's workspace files declare about it
// (spec §6's skill.json/context.json/prompt.md/schema.json contract,
// loaded by pkg/workspace's agent registry and handed to New).
type Manifest struct {
	Role           string
	PromptTemplate string
	ContextSchema  []ContextEntry
	OutputMode     string
	OutputSchema   map[string]any
	Tools          []ToolTrigger
}

// Agent is one compiled, ready-to-run execution unit.
type Agent struct {
	manifest Manifest
	model    *model.Manager
	tools    *tool.Gateway
	schema   *jsonschema.Schema
	resolver *contextResolver
	bus      *events.Bus
	log      *slog.Logger
}

// New builds an Agent from manifest, compiling its output schema once
// (spec §4.C8: context/output contracts are parsed once at load, not on
// every invocation).
func New(manifest Manifest, modelMgr *model.Manager, mem *memory.Manager, tools *tool.Gateway, ext *ExternalRegistry, bus *events.Bus, log *slog.Logger) (*Agent, error) {
	if log == nil {
		log = slog.Default()
	}

	var compiled *jsonschema.Schema
	if manifest.OutputMode == outputModeJSON && manifest.OutputSchema != nil {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(manifest.Role+"_output.json", manifest.OutputSchema); err != nil {
			return nil, errs.Wrap(errs.KindConfig, "agent", "failed to register output schema", err)
		}
		s, err := c.Compile(manifest.Role + "_output.json")
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "agent", "failed to compile output schema", err)
		}
		compiled = s
	}

	return &Agent{
		manifest: manifest,
		model:    modelMgr,
		tools:    tools,
		schema:   compiled,
		resolver: &contextResolver{mem: mem, ext: ext, log: log},
		bus:      bus,
		log:      log,
	}, nil
}

func (a *Agent) Role() string { return a.manifest.Role }

// keyNamespace derives the memory namespace for one invocation from the
// session id, stage, and role (spec §4.C7 step 1).
func (a *Agent) keyNamespace(s *session.State) store.Namespace {
	return store.Namespace{
		Tenant: s.SessionID,
		Bucket: fmt.Sprintf("%s:%s", s.Stage, a.manifest.Role),
	}
}

// Run executes one invocation against state, returning the delta the
// session actor should merge (spec §4.C7).
func (a *Agent) Run(ctx context.Context, s *session.State) (session.Delta, error) {
	ctx, span := tracer.Start(ctx, "agent.Run", trace.WithAttributes(
		attribute.String("loom.session_id", s.SessionID),
		attribute.String("loom.stage", s.Stage),
		attribute.String("loom.agent_role", a.manifest.Role),
	))
	defer span.End()

	bound := s.Snapshot()
	bound.Agent = a.manifest.Role
	stateMap := bound.ToMap()
	ns := a.keyNamespace(bound)

	a.emit(events.AgentStart, bound, "")

	values := a.resolver.resolve(ctx, a.manifest.ContextSchema, ns, bound.Task, stateMap)

	prompt, err := renderPrompt(a.manifest.PromptTemplate, values)
	if err != nil {
		a.emit(events.AgentError, bound, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt render failed")
		return session.Delta{}, err
	}

	result, err := a.model.Generate(ctx, model.Request{
		Prompt:    prompt,
		Namespace: &ns,
		Metadata:  stateMap,
	})
	if err != nil {
		a.emit(events.AgentError, bound, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "model invocation failed")
		return session.Delta{}, errs.Wrap(errs.KindModel, "agent", "model invocation failed", err)
	}

	output := result.Text
	if a.schema != nil {
		validated, verr := a.validateOutput(result.Text)
		if verr != nil {
			a.log.Warn("agent output failed schema validation, yielding empty output",
				"role", a.manifest.Role, "error", verr)
			a.emit(events.AgentError, bound, verr.Error())
			output = ""
		} else {
			output = validated
		}
	}

	a.dispatchTools(ctx, bound, output, stateMap)

	a.emit(events.AgentDone, bound, "")
	span.SetStatus(codes.Ok, "")

	return session.Delta{
		HistoryAgents: []session.HistoryEntry{{
			Stage:  bound.Stage,
			Role:   a.manifest.Role,
			Prompt: prompt,
			Output: output,
		}},
		ExecutedAgentsPerStage: map[string][]string{
			bound.Stage: {a.manifest.Role},
		},
	}, nil
}

// validateOutput extracts the first JSON object from text and validates it
// against the agent's compiled output schema (spec §4.C7 step 5). On
// success it returns the extracted JSON object's text unchanged.
func (a *Agent) validateOutput(text string) (string, error) {
	raw, err := firstJSONObject(text)
	if err != nil {
		return "", err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", errs.Wrap(errs.KindValidation, "agent", "model output is not valid JSON", err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return "", errs.Wrap(errs.KindValidation, "agent", "model output failed schema validation", err)
	}
	return string(raw), nil
}

// firstJSONObject scans text for the first balanced top-level {...} span.
func firstJSONObject(text string) ([]byte, error) {
	start := bytes.IndexByte([]byte(text), '{')
	if start < 0 {
		return nil, errs.New(errs.KindValidation, "agent", "model output contains no JSON object")
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, errs.New(errs.KindValidation, "agent", "model output contains an unterminated JSON object")
}

// dispatchTools calls every "always"-triggered tool with {output, state}
// (spec §4.C7 step 6). Denials and tool failures are both represented in
// the gateway's Result and logged; they never abort the invocation.
func (a *Agent) dispatchTools(ctx context.Context, s *session.State, output string, stateMap map[string]any) {
	if a.tools == nil {
		return
	}
	for _, trig := range a.manifest.Tools {
		if trig.Trigger != "always" {
			continue
		}
		res := a.tools.Invoke(ctx, s.SessionID, s.Stage, a.manifest.Role, tool.Call{
			ID:   fmt.Sprintf("%s:%s:%s", s.SessionID, s.Stage, trig.Name),
			Name: trig.Name,
			Args: map[string]any{"output": output, "state": stateMap},
		})
		if res.Denied {
			a.log.Warn("tool call denied", "tool", trig.Name, "role", a.manifest.Role)
		} else if res.Error != "" {
			a.log.Warn("tool call failed", "tool", trig.Name, "role", a.manifest.Role, "error", res.Error)
		}
	}
}

func (a *Agent) emit(name events.Name, s *session.State, errText string) {
	if a.bus == nil {
		return
	}
	payload := map[string]any{}
	if errText != "" {
		payload["error"] = errText
	}
	a.bus.Emit(events.Event{
		Name:      name,
		SessionID: s.SessionID,
		Component: "agent",
		Stage:     s.Stage,
		Agent:     a.manifest.Role,
		Payload:   payload,
	})
}
