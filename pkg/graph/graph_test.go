package graph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/agent"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/graph"
	"github.com/loomrun/loom/pkg/llm"
	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/model"
	"github.com/loomrun/loom/pkg/session"
	"github.com/loomrun/loom/pkg/store"
	"github.com/loomrun/loom/pkg/workspace"
)

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dim)
	for i, r := range text {
		vec[i%f.dim] += float32(r)
	}
	return vec, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f fakeEmbedder) Dimension() int { return f.dim }
func (f fakeEmbedder) Model() string  { return "fake" }
func (f fakeEmbedder) Close() error   { return nil }

type fakeChatModel struct{ reply string }

func (f *fakeChatModel) Invoke(_ context.Context, _ []llm.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	return llm.Response{Text: f.reply, Tokens: 1}, nil
}

func (f *fakeChatModel) Stream(context.Context, []llm.Message, []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *fakeChatModel) Model() string { return "fake-chat" }
func (f *fakeChatModel) Close() error  { return nil }

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func writeAgentDir(t *testing.T, workspaceDir, role, prompt string) {
	t.Helper()
	dir := filepath.Join(workspaceDir, "agents", role)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeFile(t, filepath.Join(dir, "skill.json"), `{"role": "`+role+`"}`)
	writeFile(t, filepath.Join(dir, "context.json"), `{"context": []}`)
	writeFile(t, filepath.Join(dir, "prompt.md"), prompt)
}

func newTestDeps(t *testing.T) workspace.AgentDeps {
	t.Helper()
	backend := store.NewMemoryStore(fakeEmbedder{dim: 8})
	mem := memory.New(backend, memory.Config{RecallLimit: 3, DecayThreshold: 100}, nil, nil)
	mm := model.New(&fakeChatModel{reply: "ok"}, mem, model.Config{}, nil)
	t.Cleanup(func() { mm.Shutdown(context.Background()) })

	return workspace.AgentDeps{
		Model:    mm,
		Memory:   mem,
		External: agent.NewExternalRegistry(),
		Bus:      events.New(),
	}
}

func drain(ch <-chan graph.Event) []graph.Event {
	var out []graph.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunSingleStageSingleAgentTerminates(t *testing.T) {
	dir := t.TempDir()
	writeAgentDir(t, dir, "writer", "write it")
	writeFile(t, filepath.Join(dir, "stage.json"), `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1, "terminal": true, "exit_condition": "len(state.history_agents) >= 1"}
		]
	}`)

	deps := newTestDeps(t)
	agents, err := workspace.NewAgentRegistry(dir, deps)
	require.NoError(t, err)
	stages, err := workspace.NewStageRegistry(filepath.Join(dir, "stage.json"))
	require.NoError(t, err)

	g := graph.New(stages, agents, nil, nil)
	s := session.New("sess1", "do it", "draft")
	evs := drain(g.Run(context.Background(), s))

	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, graph.EventTerminal, last.Type)

	foundAgentDone := false
	for _, ev := range evs {
		if ev.Type == graph.EventAgentDone && ev.Agent == "writer" {
			foundAgentDone = true
		}
	}
	assert.True(t, foundAgentDone)
}

func TestRunAdvancesAcrossStages(t *testing.T) {
	dir := t.TempDir()
	writeAgentDir(t, dir, "writer", "write it")
	writeAgentDir(t, dir, "reviewer", "review it")
	writeFile(t, filepath.Join(dir, "stage.json"), `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1, "next_stages": ["review"], "exit_condition": "len(state.history_agents) >= 1"},
			{"name": "review", "allowed_agents": ["reviewer"], "priority": 2, "terminal": true, "exit_condition": "len(state.history_agents) >= 2"}
		]
	}`)

	deps := newTestDeps(t)
	agents, err := workspace.NewAgentRegistry(dir, deps)
	require.NoError(t, err)
	stages, err := workspace.NewStageRegistry(filepath.Join(dir, "stage.json"))
	require.NoError(t, err)

	g := graph.New(stages, agents, nil, nil)
	s := session.New("sess1", "do it", "draft")
	evs := drain(g.Run(context.Background(), s))

	var sawReviewEnter, sawDone bool
	for _, ev := range evs {
		if ev.Type == graph.EventStageEnter && ev.Stage == "review" {
			sawReviewEnter = true
		}
		if ev.Type == graph.EventRouted && ev.Delta.Done != nil && *ev.Delta.Done {
			sawDone = true
		}
	}
	assert.True(t, sawReviewEnter)
	assert.True(t, sawDone)
}

func TestRunStopsOnMisconfiguredExitCondition(t *testing.T) {
	dir := t.TempDir()
	writeAgentDir(t, dir, "writer", "write it")
	writeFile(t, filepath.Join(dir, "stage.json"), `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1, "exit_condition": "len(state.history_agents) >= 99"}
		]
	}`)

	deps := newTestDeps(t)
	agents, err := workspace.NewAgentRegistry(dir, deps)
	require.NoError(t, err)
	stages, err := workspace.NewStageRegistry(filepath.Join(dir, "stage.json"))
	require.NoError(t, err)

	g := graph.New(stages, agents, nil, nil)
	s := session.New("sess1", "do it", "draft")
	evs := drain(g.Run(context.Background(), s))

	last := evs[len(evs)-1]
	assert.Equal(t, graph.EventTerminal, last.Type)
	assert.False(t, s.Done)
}

func TestRunYieldsAgentErrorWhenNoAgentIsRegisteredForARole(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))
	writeFile(t, filepath.Join(dir, "stage.json"), `{
		"stages": [
			{"name": "draft", "allowed_agents": ["ghost"], "priority": 1, "terminal": true}
		]
	}`)

	deps := newTestDeps(t)
	agents, err := workspace.NewAgentRegistry(dir, deps)
	require.NoError(t, err)
	stages, err := workspace.NewStageRegistry(filepath.Join(dir, "stage.json"))
	require.NoError(t, err)

	g := graph.New(stages, agents, nil, nil)
	s := session.New("sess1", "do it", "draft")
	evs := drain(g.Run(context.Background(), s))

	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, graph.EventAgentError, last.Type)
	require.Error(t, last.Err)
}

func TestRunHumanInTheLoopOverridesRoute(t *testing.T) {
	dir := t.TempDir()
	writeAgentDir(t, dir, "writer", "write it")
	writeAgentDir(t, dir, "reviewer", "review it")
	writeFile(t, filepath.Join(dir, "stage.json"), `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer", "reviewer"], "priority": 1, "terminal": true, "exit_condition": "len(state.history_agents) >= 1"}
		]
	}`)

	deps := newTestDeps(t)
	agents, err := workspace.NewAgentRegistry(dir, deps)
	require.NoError(t, err)
	stages, err := workspace.NewStageRegistry(filepath.Join(dir, "stage.json"))
	require.NoError(t, err)

	hitl := func(s *session.State, remaining []string) (graph.Directive, bool) {
		for _, r := range remaining {
			if r == "reviewer" {
				return graph.Directive{NextAgent: "reviewer"}, true
			}
		}
		return graph.Directive{}, false
	}

	g := graph.New(stages, agents, hitl, nil)
	s := session.New("sess1", "do it", "draft")
	evs := drain(g.Run(context.Background(), s))

	var firstAgent string
	for _, ev := range evs {
		if ev.Type == graph.EventAgentDone {
			firstAgent = ev.Agent
			break
		}
	}
	assert.Equal(t, "reviewer", firstAgent)
}
