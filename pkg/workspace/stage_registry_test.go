package workspace_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/workspace"
)

func writeStageFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "stage.json")
	require.NoError(t, writeFile(path, contents))
	return path
}

func TestNewStageRegistrySortsByPriority(t *testing.T) {
	dir := t.TempDir()
	path := writeStageFile(t, dir, `{
		"stages": [
			{"name": "review", "allowed_agents": ["reviewer"], "priority": 2},
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1},
			{"name": "done", "allowed_agents": [], "priority": 3, "terminal": true}
		]
	}`)

	reg, err := workspace.NewStageRegistry(path)
	require.NoError(t, err)

	names := make([]string, 0, 3)
	for _, s := range reg.ListStages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"draft", "review", "done"}, names)
	assert.Equal(t, "draft", reg.FirstStage().Name)
	assert.True(t, reg.IsTerminal("done"))
}

func TestStageRegistryNextStage(t *testing.T) {
	dir := t.TempDir()
	path := writeStageFile(t, dir, `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1},
			{"name": "review", "allowed_agents": ["reviewer"], "priority": 2}
		]
	}`)

	reg, err := workspace.NewStageRegistry(path)
	require.NoError(t, err)

	next, ok := reg.NextStage("draft")
	require.True(t, ok)
	assert.Equal(t, "review", next.Name)

	_, ok = reg.NextStage("review")
	assert.False(t, ok)
}

func TestStageRegistryCompilesExitCondition(t *testing.T) {
	dir := t.TempDir()
	path := writeStageFile(t, dir, `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1, "exit_condition": "len(state.history_agents) >= 1"}
		]
	}`)

	reg, err := workspace.NewStageRegistry(path)
	require.NoError(t, err)

	s, ok := reg.Get("draft")
	require.True(t, ok)
	require.NotNil(t, s.ExitCondition)

	done, err := s.ExitCondition.Eval(map[string]any{
		"state": map[string]any{"history_agents": []any{map[string]any{}}},
	})
	require.NoError(t, err)
	assert.True(t, done)
}

func TestStageRegistryRejectsUnknownNextStage(t *testing.T) {
	dir := t.TempDir()
	path := writeStageFile(t, dir, `{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "next_stages": ["missing"], "priority": 1}
		]
	}`)

	_, err := workspace.NewStageRegistry(path)
	assert.Error(t, err)
}

func TestNewStageRegistryRejectsNonTerminalStageWithNoAgents(t *testing.T) {
	dir := t.TempDir()
	path := writeStageFile(t, dir, `{
		"stages": [
			{"name": "draft", "allowed_agents": [], "priority": 1}
		]
	}`)

	_, err := workspace.NewStageRegistry(path)
	assert.Error(t, err)
}

func TestStageRegistryValidateAgentsRejectsUnknownRole(t *testing.T) {
	dir := t.TempDir()
	path := writeStageFile(t, dir, `{
		"stages": [
			{"name": "draft", "allowed_agents": ["ghost"], "priority": 1}
		]
	}`)
	reg, err := workspace.NewStageRegistry(path)
	require.NoError(t, err)

	agents := newEmptyAgentRegistry(t)
	err = reg.ValidateAgents(agents)
	assert.Error(t, err)
}
