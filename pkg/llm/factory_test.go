package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/llm"
)

func TestNewProviderUnknownType(t *testing.T) {
	_, err := llm.NewProvider(context.Background(), llm.ProviderConfig{Type: "bogus"})
	assert.Error(t, err)
}

func TestNewProviderOpenAI(t *testing.T) {
	m, err := llm.NewProvider(context.Background(), llm.ProviderConfig{
		Type:  llm.ProviderOpenAI,
		Model: "gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", m.Model())
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := llm.NewRegistry()
	m, err := llm.NewProvider(context.Background(), llm.ProviderConfig{Type: llm.ProviderOpenAI})
	require.NoError(t, err)

	require.NoError(t, reg.Register("default", m))
	got, ok := reg.Get("default")
	require.True(t, ok)
	assert.Equal(t, m.Model(), got.Model())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}
