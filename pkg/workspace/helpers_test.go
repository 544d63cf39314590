package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/agent"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/llm"
	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/model"
	"github.com/loomrun/loom/pkg/store"
	"github.com/loomrun/loom/pkg/workspace"
)

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

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

func newEmptyAgentRegistry(t *testing.T) *workspace.AgentRegistry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))

	reg, err := workspace.NewAgentRegistry(dir, newTestDeps(t))
	require.NoError(t, err)
	return reg
}
