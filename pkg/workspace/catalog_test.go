package workspace_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/tool"
	"github.com/loomrun/loom/pkg/workspace"
)

func TestLoadToolsPolicyBuildsPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools_policy.json")
	require.NoError(t, writeFile(path, `{"agents": {"writer": {"tools": ["notify", "search"]}}}`))

	policy, err := workspace.LoadToolsPolicy(path)
	require.NoError(t, err)
	assert.True(t, policy.Allows("writer", "notify"))
	assert.False(t, policy.Allows("writer", "delete"))
	assert.False(t, policy.Allows("reviewer", "notify"))
}

func TestLoadToolCatalogResolvesEntrypoints(t *testing.T) {
	workspace.RegisterToolFactory("test.echo", func(spec map[string]any) (tool.Tool, error) {
		return &echoCatalogTool{name: "echo"}, nil
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "tools.json")
	require.NoError(t, writeFile(path, `{
		"tools": [
			{"name": "echo", "entrypoint": "test.echo"}
		]
	}`))

	reg, err := workspace.LoadToolCatalog(path)
	require.NoError(t, err)

	tl, ok := reg.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tl.Name())
}

func TestLoadToolCatalogRejectsUnknownEntrypoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.json")
	require.NoError(t, writeFile(path, `{
		"tools": [
			{"name": "ghost", "entrypoint": "nonexistent"}
		]
	}`))

	_, err := workspace.LoadToolCatalog(path)
	assert.Error(t, err)
}

type echoCatalogTool struct{ name string }

func (e *echoCatalogTool) Name() string           { return e.name }
func (e *echoCatalogTool) Description() string    { return "echoes its args" }
func (e *echoCatalogTool) Schema() map[string]any { return nil }
func (e *echoCatalogTool) Call(_ context.Context, args map[string]any) (map[string]any, error) {
	return args, nil
}
