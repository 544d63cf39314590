package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/memory"
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

func newManager() *memory.Manager {
	backend := store.NewMemoryStore(fakeEmbedder{dim: 8})
	return memory.New(backend, memory.Config{RecallLimit: 3, DecayThreshold: 2}, nil, nil)
}

func TestSaveAndRetrieveSemantic(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	ns := store.Namespace{Tenant: "s1", Bucket: "semantic"}

	_, err := m.SaveSemantic(ctx, ns, "fact1", "the sky is blue", nil, nil, nil)
	require.NoError(t, err)

	results, err := m.RetrieveSemantic(ctx, ns, "the sky is blue", 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact1", results[0].Key)
}

func TestRetrieveSemanticEmptyQueryReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	ns := store.Namespace{Tenant: "s1", Bucket: "semantic"}

	results, err := m.RetrieveSemantic(ctx, ns, "", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveEpisodeAccumulatesCount(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	ns := store.Namespace{Tenant: "s1", Bucket: "episodic"}

	require.NoError(t, m.SaveEpisode(ctx, ns, "turn1", map[string]any{"text": "hi"}))
	require.NoError(t, m.SaveEpisode(ctx, ns, "turn1", map[string]any{"text": "hi again"}))

	episodes, err := m.FetchEpisodes(ctx, ns, []string{"turn1"})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.EqualValues(t, 2, episodes[0].Metadata["episode_count"])
}

func TestFetchEpisodesSkipsMissingKeys(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	ns := store.Namespace{Tenant: "s1", Bucket: "episodic"}

	require.NoError(t, m.SaveEpisode(ctx, ns, "turn1", map[string]any{"text": "hi"}))

	episodes, err := m.FetchEpisodes(ctx, ns, []string{"turn1", "missing"})
	require.NoError(t, err)
	assert.Len(t, episodes, 1)
}

func TestSaveSemanticMergesRewardMeanIntoMetadata(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	ns := store.Namespace{Tenant: "s1", Bucket: "semantic"}

	first := 0.5
	item, err := m.SaveSemantic(ctx, ns, "m", "t", nil, nil, &first)
	require.NoError(t, err)
	assert.Equal(t, 0.5, item.Metadata["avg_reward"])
	assert.Equal(t, 1, item.Metadata["reward_count"])

	second := 0.25
	item, err = m.SaveSemantic(ctx, ns, "m", "t", nil, nil, &second)
	require.NoError(t, err)
	assert.Equal(t, 0.375, item.Metadata["avg_reward"])
	assert.Equal(t, 2, item.Metadata["reward_count"])
}
