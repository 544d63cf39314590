package runtime_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/runtime"
)

func TestNewManagerBuildsEveryComponentAndCompilesGraph(t *testing.T) {
	dir := writeWorkspace(t)

	m, err := runtime.NewManager(context.Background(), dir, runtime.ManagerConfig{})
	require.NoError(t, err)
	defer m.Close()

	assert.NotNil(t, m)
}

func TestNewManagerFailsOnUnknownChatProviderAlias(t *testing.T) {
	dir := writeWorkspace(t)

	manifestPath := filepath.Join(dir, "workspace.json")
	raw, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	patched := []byte(`{
		"name": "demo",
		"first_stage": "draft",
		"models": {
			"chat_provider": "does-not-exist",
			"store_provider": "scratch",
			"chat_model_catalog": "chatmodels.yaml",
			"store_catalog": "stores.yaml"
		}
	}`)
	_ = raw
	require.NoError(t, os.WriteFile(manifestPath, patched, 0o644))

	_, err = runtime.NewManager(context.Background(), dir, runtime.ManagerConfig{})
	require.Error(t, err)
}

func TestNewManagerFailsOnMissingChatCatalogFile(t *testing.T) {
	dir := writeWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "chatmodels.yaml")))

	_, err := runtime.NewManager(context.Background(), dir, runtime.ManagerConfig{})
	require.Error(t, err)
}

func TestManagerRunUserMessageGeneratesASessionIDWhenNoneGiven(t *testing.T) {
	dir := writeWorkspace(t)

	m, err := runtime.NewManager(context.Background(), dir, runtime.ManagerConfig{})
	require.NoError(t, err)
	defer m.Close()

	// The writer agent's model call would hit a real network endpoint, so
	// this only exercises session-ID assignment and first-stage resolution
	// up to (not through) the orchestrator's first agent invocation — it
	// runs the orchestrator with a context already canceled, guaranteeing
	// Run returns promptly with a context error rather than attempting any
	// provider call.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.RunUserMessage(ctx, "hello", "")
	require.Error(t, err)
}

func TestManagerCloseStopsWatcherAndShutsDownComponents(t *testing.T) {
	dir := writeWorkspace(t)

	m, err := runtime.NewManager(context.Background(), dir, runtime.ManagerConfig{})
	require.NoError(t, err)

	require.NoError(t, m.Close())
}
