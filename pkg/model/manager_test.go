package model_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/llm"
	"github.com/loomrun/loom/pkg/memory"
	"github.com/loomrun/loom/pkg/model"
	"github.com/loomrun/loom/pkg/store"
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

// fakeChatModel records every Invoke call so tests can assert on the
// messages a generate() pass actually sent, including the reflection pass
// that runs on the reflection worker goroutine.
type fakeChatModel struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string

	reflected chan struct{}
}

func (f *fakeChatModel) Invoke(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	isReflection := len(messages) > 0 && messages[0].Role == llm.RoleSystem
	f.mu.Unlock()

	if isReflection && f.reflected != nil {
		defer close(f.reflected)
	}
	return llm.Response{Text: f.reply, Tokens: 1}, nil
}

func (f *fakeChatModel) Stream(context.Context, []llm.Message, []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *fakeChatModel) Model() string { return "fake-chat" }
func (f *fakeChatModel) Close() error  { return nil }

func (f *fakeChatModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestManager(chat *fakeChatModel) (*model.Manager, *memory.Manager) {
	backend := store.NewMemoryStore(fakeEmbedder{dim: 8})
	mem := memory.New(backend, memory.Config{RecallLimit: 3, DecayThreshold: 100}, nil, nil)
	mgr := model.New(chat, mem, model.Config{TopK: 3, ShutdownTimeout: time.Second}, nil)
	return mgr, mem
}

func TestGenerateWithoutNamespaceSkipsMemory(t *testing.T) {
	chat := &fakeChatModel{reply: "hello there"}
	mgr, _ := newTestManager(chat)
	defer mgr.Shutdown(context.Background())

	result, err := mgr.Generate(context.Background(), model.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Text)
	assert.Equal(t, 1, chat.callCount())
}

func TestGenerateAugmentsPromptFromSemanticMemory(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChatModel{reply: "ack"}
	mgr, mem := newTestManager(chat)
	defer mgr.Shutdown(ctx)

	ns := store.Namespace{Tenant: "s1", Bucket: "semantic"}
	_, err := mem.SaveSemantic(ctx, ns, "fact1", "the sky is blue", nil, nil, nil)
	require.NoError(t, err)

	_, err = mgr.Generate(ctx, model.Request{Prompt: "the sky is blue", Namespace: &ns})
	require.NoError(t, err)

	require.Equal(t, 1, chat.callCount())
	sent := chat.calls[0][0].Content
	assert.True(t, strings.Contains(sent, "the sky is blue"))
}

func TestGeneratePersistsInteractionAndReward(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChatModel{reply: "ack", reflected: make(chan struct{})}
	mgr, mem := newTestManager(chat)
	defer mgr.Shutdown(ctx)

	ns := store.Namespace{Tenant: "s1", Bucket: "semantic"}
	reward := 0.5
	_, err := mgr.Generate(ctx, model.Request{Prompt: "hi", Namespace: &ns, Reward: &reward})
	require.NoError(t, err)

	episodes, err := mem.FetchEpisodes(ctx, ns, []string{"last_query"})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, 0.5, episodes[0].Metadata["avg_reward"])
	assert.Equal(t, 1, episodes[0].Metadata["reward_count"])

	select {
	case <-chat.reflected:
	case <-time.After(2 * time.Second):
		t.Fatal("reflection never ran")
	}

	reflection, err := mem.FetchEpisodes(ctx, store.Namespace{Tenant: "s1", Bucket: "semantic"}, []string{"last_query:reflection"})
	require.NoError(t, err)
	require.Len(t, reflection, 1)
	assert.Equal(t, "self_reflection", reflection[0].Value["type"])
}

func TestShutdownDrainsPendingReflection(t *testing.T) {
	chat := &fakeChatModel{reply: "ack", reflected: make(chan struct{})}
	mgr, _ := newTestManager(chat)

	ns := store.Namespace{Tenant: "s1", Bucket: "semantic"}
	_, err := mgr.Generate(context.Background(), model.Request{Prompt: "hi", Namespace: &ns})
	require.NoError(t, err)

	require.NoError(t, mgr.Shutdown(context.Background()))
	select {
	case <-chat.reflected:
	default:
		t.Fatal("reflection task was not drained before shutdown returned")
	}
}
