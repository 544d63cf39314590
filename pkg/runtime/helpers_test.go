package runtime_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeWorkspace lays out a minimal, fully wired workspace fixture under a
// fresh temp directory: one stage, one agent, and provider catalogs that
// resolve to real (but never network-invoked in these tests) chat-model
// and store backends.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "workspace.json"), []byte(`{
		"name": "demo",
		"first_stage": "draft",
		"models": {
			"chat_provider": "fast",
			"store_provider": "scratch",
			"chat_model_catalog": "chatmodels.yaml",
			"store_catalog": "stores.yaml",
			"recall_limit": 3,
			"decay_threshold": 10,
			"top_k": 3
		}
	}`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatmodels.yaml"), []byte(`
fast:
  type: anthropic
  model: claude-3-haiku
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.yaml"), []byte(`
scratch:
  type: memory
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools_policy.json"), []byte(`{"agents": {}}`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stage.json"), []byte(`{
		"stages": [
			{"name": "draft", "allowed_agents": ["writer"], "priority": 1, "terminal": true, "exit_condition": "len(state.history_agents) >= 1"}
		]
	}`), 0o644))

	agentDir := filepath.Join(dir, "agents", "writer")
	require.NoError(t, os.MkdirAll(agentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "skill.json"), []byte(`{"role": "writer"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "context.json"), []byte(`{"context": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "prompt.md"), []byte("go write it"), 0o644))

	return dir
}
