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

// Package model implements the model manager (spec §4.C5): one-shot
// retrieval-augmented generation plus fire-and-forget self-reflection.
//
// Self-reflection is "fire-and-forget" in the source this was distilled
// from; here it is a bounded task queue owned by the Manager, drained by a
// single worker goroutine, with a graceful, timeout-bounded Shutdown (spec
// §9 design notes, "async fire-and-forget self-reflection").
package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/loomrun/loom/pkg/errs"
	"github.com/loomrun/loom/pkg/llm"
	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/store"
)

var tracer = otel.Tracer("github.com/loomrun/loom/pkg/model")

const defaultReflectionPrompt = "You just produced a response to a user prompt. " +
	"Reflect on whether the response was accurate, complete, and well-grounded in " +
	"the retrieved context. Note anything you would do differently next time."

// Config tunes the manager's RAG defaults and reflection queue.
type Config struct {
	// TopK is the default semantic recall size when a request does not
	// specify one (spec §4.C5 step 1, generate's top_k=5 default).
	TopK int

	// ReflectionPrompt seeds the self-reflection pass's system message.
	ReflectionPrompt string

	// QueueSize bounds the number of pending reflection tasks. A full
	// queue drops the newest task and logs rather than blocking the
	// caller's generate() return (spec §4.C5 step 6, "MUST NOT block").
	QueueSize int

	// ShutdownTimeout bounds how long Shutdown waits for the reflection
	// queue to drain before giving up.
	ShutdownTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.ReflectionPrompt == "" {
		c.ReflectionPrompt = defaultReflectionPrompt
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Request carries the arguments to Generate (spec §4.C5 generate()).
type Request struct {
	Prompt string

	// Namespace is optional: a nil Namespace means "no memory", skipping
	// retrieval, persistence, and reflection entirely.
	Namespace *store.Namespace

	Metadata map[string]any
	TopK     int
	Reward   *float64
}

// Result is the outcome of a Generate call.
type Result struct {
	Text   string
	Tokens int
}

type reflectionTask struct {
	ns              store.Namespace
	interactionText string
}

// Manager is the RAG pipeline: one chat model, one memory manager, one
// bounded reflection queue.
type Manager struct {
	chat llm.ChatModel
	mem  *memory.Manager
	cfg  Config
	log  *slog.Logger

	queue chan reflectionTask
	stop  chan struct{}
	done  chan struct{}
}

// New builds a Manager and starts its reflection worker.
func New(chat llm.ChatModel, mem *memory.Manager, cfg Config, log *slog.Logger) *Manager {
	cfg.setDefaults()
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		chat:  chat,
		mem:   mem,
		cfg:   cfg,
		log:   log,
		queue: make(chan reflectionTask, cfg.QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.runReflectionWorker()
	return m
}

// Generate runs one retrieve -> augment -> invoke -> persist -> reflect
// pass (spec §4.C5).
func (m *Manager) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "model.Generate")
	defer span.End()

	topK := req.TopK
	if topK <= 0 {
		topK = m.cfg.TopK
	}

	augmented := req.Prompt
	if req.Namespace != nil {
		hits, err := m.mem.RetrieveSemantic(ctx, *req.Namespace, req.Prompt, topK, nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "semantic retrieval failed")
			return Result{}, errs.Wrap(errs.KindModel, "model_manager", "semantic retrieval failed", err)
		}
		if len(hits) > 0 {
			lines := make([]string, 0, len(hits))
			for _, h := range hits {
				if text, ok := h.Value["text"].(string); ok && text != "" {
					lines = append(lines, text)
				}
			}
			if len(lines) > 0 {
				augmented = strings.Join(lines, "\n") + "\n" + req.Prompt
			}
		}
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: augmented}}
	resp, err := m.chat.Invoke(ctx, messages, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat invocation failed")
		return Result{}, errs.Wrap(errs.KindModel, "model_manager", "chat invocation failed", err)
	}

	if req.Namespace != nil {
		interaction := fmt.Sprintf("Prompt: %s\nResponse: %s", req.Prompt, resp.Text)
		if err := m.persist(ctx, *req.Namespace, interaction, req.Metadata, req.Reward); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persisting interaction failed")
			return Result{}, err
		}
		m.scheduleReflection(*req.Namespace, interaction)
	}
	span.SetStatus(codes.Ok, "")

	return Result{Text: resp.Text, Tokens: resp.Tokens}, nil
}

// persist saves the interaction into semantic memory under "last_query",
// passing a present reward straight through to save_semantic's own
// avg_reward/reward_count aggregation (spec §4.C5 step 5, §4.C4 reward
// contract).
func (m *Manager) persist(ctx context.Context, ns store.Namespace, interaction string, metadata map[string]any, reward *float64) error {
	if _, err := m.mem.SaveSemantic(ctx, ns, "last_query", interaction, metadata, nil, reward); err != nil {
		return errs.Wrap(errs.KindModel, "model_manager", "failed to persist interaction", err)
	}
	return nil
}

// scheduleReflection enqueues a reflection task without blocking the
// caller. A full queue drops the task and logs it (spec §4.C5 step 6).
func (m *Manager) scheduleReflection(ns store.Namespace, interactionText string) {
	task := reflectionTask{ns: ns, interactionText: interactionText}
	select {
	case m.queue <- task:
	default:
		m.log.Warn("reflection queue full, dropping task",
			"namespace_tenant", ns.Tenant, "namespace_bucket", ns.Bucket)
	}
}

func (m *Manager) runReflectionWorker() {
	defer close(m.done)
	for {
		select {
		case task, ok := <-m.queue:
			if !ok {
				return
			}
			m.reflect(context.Background(), task)
		case <-m.stop:
			m.drainQueue()
			return
		}
	}
}

// drainQueue runs any reflection tasks already enqueued before Shutdown
// was called, then returns; it never blocks waiting for new tasks.
func (m *Manager) drainQueue() {
	for {
		select {
		case task, ok := <-m.queue:
			if !ok {
				return
			}
			m.reflect(context.Background(), task)
		default:
			return
		}
	}
}

// reflect runs the self-reflection pass and persists its output
// episodically (spec §4.C5 "Self-reflection"). Failures are logged, never
// propagated — this runs off the request path.
func (m *Manager) reflect(ctx context.Context, task reflectionTask) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: m.cfg.ReflectionPrompt},
		{Role: llm.RoleUser, Content: task.interactionText},
	}
	resp, err := m.chat.Invoke(ctx, messages, nil)
	if err != nil {
		m.log.Warn("self-reflection invocation failed", "error", err)
		return
	}

	value := map[string]any{
		"text":           resp.Text,
		"type":           "self_reflection",
		"reflected_text": task.interactionText,
	}
	if err := m.mem.SaveEpisode(ctx, task.ns, "last_query:reflection", value); err != nil {
		m.log.Warn("failed to persist self-reflection", "error", err)
	}
}

// Shutdown stops accepting new generate() calls from scheduling reflection
// work past this point and waits up to the configured timeout for the
// queue to drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	close(m.stop)
	deadline := time.NewTimer(m.cfg.ShutdownTimeout)
	defer deadline.Stop()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
		return errs.New(errs.KindModel, "model_manager", "reflection queue did not drain before shutdown timeout")
	}
}
