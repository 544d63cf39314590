package orchestrator_test

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
	"github.com/loomrun/loom/pkg/orchestrator"
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

func buildGraph(t *testing.T, bus *events.Bus) *graph.Graph {
	t.Helper()
	dir := t.TempDir()

	agentDir := filepath.Join(dir, "agents", "writer")
	require.NoError(t, os.MkdirAll(agentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "skill.json"), []byte(`{"role": "writer"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "context.json"), []byte(`{"context": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "prompt.md"), []byte("go write it"), 0o644))

	stagePath := filepath.Join(dir, "stage.json")
	require.NoError(t, os.WriteFile(stagePath, []byte(`{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1, "terminal": true, "exit_condition": "len(state.history_agents) >= 1"}
		]
	}`), 0o644))

	backend := store.NewMemoryStore(fakeEmbedder{dim: 8})
	mem := memory.New(backend, memory.Config{RecallLimit: 3, DecayThreshold: 100}, nil, nil)
	mm := model.New(&fakeChatModel{reply: "done"}, mem, model.Config{}, nil)
	t.Cleanup(func() { mm.Shutdown(context.Background()) })

	deps := workspace.AgentDeps{Model: mm, Memory: mem, External: agent.NewExternalRegistry(), Bus: bus}
	agents, err := workspace.NewAgentRegistry(dir, deps)
	require.NoError(t, err)
	stages, err := workspace.NewStageRegistry(stagePath)
	require.NoError(t, err)

	return graph.New(stages, agents, nil, nil)
}

func TestRunReturnsFinalStateAndEmitsLifecycleEvents(t *testing.T) {
	bus := events.New()
	var names []events.Name
	bus.SubscribeAll(func(e events.Event) { names = append(names, e.Name) })

	g := buildGraph(t, bus)
	orch := orchestrator.New("sess1", g, bus, nil)

	initial := session.New("sess1", "write a haiku", "draft")
	final, err := orch.Run(context.Background(), initial)
	require.NoError(t, err)

	assert.True(t, final.Done)
	require.Len(t, final.HistoryAgents, 1)
	assert.Equal(t, "writer", final.HistoryAgents[0].Role)

	assert.Contains(t, names, events.OrchestratorStart)
	assert.Contains(t, names, events.OrchestratorEnd)
	assert.Contains(t, names, events.GraphEvent)
}

func buildGraphWithMissingAgent(t *testing.T, bus *events.Bus) *graph.Graph {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))

	stagePath := filepath.Join(dir, "stage.json")
	require.NoError(t, os.WriteFile(stagePath, []byte(`{
		"stages": [
			{"name": "draft", "allowed_agents": ["ghost"], "priority": 1, "terminal": true}
		]
	}`), 0o644))

	backend := store.NewMemoryStore(fakeEmbedder{dim: 8})
	mem := memory.New(backend, memory.Config{RecallLimit: 3, DecayThreshold: 100}, nil, nil)
	mm := model.New(&fakeChatModel{reply: "done"}, mem, model.Config{}, nil)
	t.Cleanup(func() { mm.Shutdown(context.Background()) })

	deps := workspace.AgentDeps{Model: mm, Memory: mem, External: agent.NewExternalRegistry(), Bus: bus}
	agents, err := workspace.NewAgentRegistry(dir, deps)
	require.NoError(t, err)
	stages, err := workspace.NewStageRegistry(stagePath)
	require.NoError(t, err)

	return graph.New(stages, agents, nil, nil)
}

func TestRunSurfacesAFailingAgentAsADoneTerminalStateWithTheErrorCaptured(t *testing.T) {
	bus := events.New()
	var names []events.Name
	bus.SubscribeAll(func(e events.Event) { names = append(names, e.Name) })

	g := buildGraphWithMissingAgent(t, bus)
	orch := orchestrator.New("sess1", g, bus, nil)

	initial := session.New("sess1", "write a haiku", "draft")
	final, err := orch.Run(context.Background(), initial)

	require.Error(t, err)
	assert.True(t, final.Done)
	require.Len(t, final.HistoryAgents, 1)
	assert.NotEmpty(t, final.HistoryAgents[0].Error)
	assert.Contains(t, names, events.AgentError)
}

func TestRunDoesNotMutateCallersInitialState(t *testing.T) {
	bus := events.New()
	g := buildGraph(t, bus)
	orch := orchestrator.New("sess1", g, bus, nil)

	initial := session.New("sess1", "write a haiku", "draft")
	_, err := orch.Run(context.Background(), initial)
	require.NoError(t, err)

	assert.False(t, initial.Done)
	assert.Empty(t, initial.HistoryAgents)
}
