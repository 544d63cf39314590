package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConstructsEveryCatalogedProvider(t *testing.T) {
	chat, embed, stores := newComponentsTestCatalogs(t)

	comp, err := Build(context.Background(), chat, embed, stores, BuildOptions{
		StoreEmbedder: map[string]string{"scratch": "default"},
	})
	require.NoError(t, err)

	require.Contains(t, comp.ChatModels, "fast")
	require.Contains(t, comp.Embedders, "default")
	require.Contains(t, comp.Stores, "scratch")

	assert.NoError(t, comp.Shutdown())
}

func TestBuildFailsOnUnknownProviderType(t *testing.T) {
	chat := ChatModelCatalog{"broken": {Type: "not-a-real-backend"}}

	_, err := Build(context.Background(), chat, EmbeddingCatalog{}, StoreCatalog{}, BuildOptions{})
	assert.Error(t, err)
}

func TestBuildWithoutStoreEmbedderMappingLeavesEmbedderNil(t *testing.T) {
	stores := StoreCatalog{"scratch": {Type: "memory"}}

	comp, err := Build(context.Background(), ChatModelCatalog{}, EmbeddingCatalog{}, stores, BuildOptions{})
	require.NoError(t, err)
	require.Contains(t, comp.Stores, "scratch")
}
