package workspace_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/workspace"
)

func writeWorkspaceFiles(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, writeFile(filepath.Join(dir, "workspace.json"), `{"name": "demo", "first_stage": "draft"}`))
	require.NoError(t, writeFile(filepath.Join(dir, "stage.json"), `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1, "terminal": true}
		]
	}`))
	require.NoError(t, writeFile(filepath.Join(dir, "tools_policy.json"), `{"agents": {"writer": {"tools": []}}}`))
	writeAgentDir(t, dir, "writer",
		`{"role": "writer"}`,
		`{"context": []}`,
		"go write something",
		"")
}

func TestLoadBuildsACompleteWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeWorkspaceFiles(t, dir)

	ws, err := workspace.Load(dir, newTestDeps(t), "")
	require.NoError(t, err)

	assert.Equal(t, "demo", ws.Name)
	assert.True(t, ws.Agents.Exists("writer"))
	assert.Equal(t, "draft", ws.Stages.FirstStage().Name)
}

func TestLoadFailsWhenStageReferencesUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	writeWorkspaceFiles(t, dir)
	require.NoError(t, writeFile(filepath.Join(dir, "stage.json"), `{
		"stages": [
			{"name": "draft", "allowed_agents": ["ghost"], "priority": 1, "terminal": true}
		]
	}`))

	_, err := workspace.Load(dir, newTestDeps(t), "")
	assert.Error(t, err)
}

func TestLoadWithToolCatalog(t *testing.T) {
	dir := t.TempDir()
	writeWorkspaceFiles(t, dir)

	catalogPath := filepath.Join(dir, "tools.json")
	require.NoError(t, writeFile(catalogPath, `{"tools": []}`))

	ws, err := workspace.Load(dir, newTestDeps(t), catalogPath)
	require.NoError(t, err)
	assert.Empty(t, ws.Tools.List())
}

func TestWorkspaceReloadRefreshesAgents(t *testing.T) {
	dir := t.TempDir()
	writeWorkspaceFiles(t, dir)

	ws, err := workspace.Load(dir, newTestDeps(t), "")
	require.NoError(t, err)

	writeAgentDir(t, dir, "editor",
		`{"role": "editor"}`,
		`{"context": []}`,
		"edit it",
		"")
	require.NoError(t, ws.Reload())
	assert.True(t, ws.Agents.Exists("editor"))
}
