package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/workspace"
)

func writeAgentDir(t *testing.T, root, role, skillJSON, contextJSON, prompt, schemaJSON string) {
	t.Helper()
	dir := filepath.Join(root, "agents", role)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, writeFile(filepath.Join(dir, "skill.json"), skillJSON))
	require.NoError(t, writeFile(filepath.Join(dir, "context.json"), contextJSON))
	require.NoError(t, writeFile(filepath.Join(dir, "prompt.md"), prompt))
	if schemaJSON != "" {
		require.NoError(t, writeFile(filepath.Join(dir, "schema.json"), schemaJSON))
	}
}

func TestAgentRegistryLoadsAgentFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeAgentDir(t, dir, "writer",
		`{"role": "writer", "output_mode": "text"}`,
		`{"context": [{"name": "task_value", "type": "state", "key": "task"}]}`,
		"Write about: {task_value}",
		"")

	reg, err := workspace.NewAgentRegistry(dir, newTestDeps(t))
	require.NoError(t, err)

	assert.True(t, reg.Exists("writer"))
	assert.Equal(t, []string{"writer"}, reg.Roles())

	a, ok := reg.Get("writer")
	require.True(t, ok)
	assert.Equal(t, "writer", a.Role())
}

func TestAgentRegistryReloadPicksUpNewAgents(t *testing.T) {
	dir := t.TempDir()
	writeAgentDir(t, dir, "writer",
		`{"role": "writer"}`,
		`{"context": []}`,
		"go",
		"")

	reg, err := workspace.NewAgentRegistry(dir, newTestDeps(t))
	require.NoError(t, err)
	require.Len(t, reg.Roles(), 1)

	writeAgentDir(t, dir, "reviewer",
		`{"role": "reviewer"}`,
		`{"context": []}`,
		"review",
		"")

	require.NoError(t, reg.ReloadAll())
	assert.ElementsMatch(t, []string{"writer", "reviewer"}, reg.Roles())
}

func TestAgentRegistryFailsOnMissingManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents", "broken"), 0o755))

	_, err := workspace.NewAgentRegistry(dir, newTestDeps(t))
	assert.Error(t, err)
}
