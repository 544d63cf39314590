package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCatalogSplitsTypeFromParams(t *testing.T) {
	path := writeCatalogFile(t, `
fast:
  type: openai
  api_key: sk-test
  model: gpt-4o-mini
slow:
  type: anthropic
  model: claude-3-opus
`)

	entries, err := loadCatalog(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	fast := entries["fast"]
	assert.Equal(t, "openai", fast.Type)
	assert.Equal(t, "sk-test", fast.Params["api_key"])
	assert.Equal(t, "gpt-4o-mini", fast.Params["model"])
	assert.NotContains(t, fast.Params, "type")

	slow := entries["slow"]
	assert.Equal(t, "anthropic", slow.Type)
	assert.Equal(t, "claude-3-opus", slow.Params["model"])
}

func TestLoadCatalogRejectsNonMappingEntry(t *testing.T) {
	path := writeCatalogFile(t, `
broken: "not a mapping"
`)

	_, err := loadCatalog(path)
	assert.Error(t, err)
}

func TestLoadCatalogFailsOnMissingFile(t *testing.T) {
	_, err := loadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDecodeIntoPopulatesStruct(t *testing.T) {
	var out struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	}
	err := decodeInto(map[string]any{"api_key": "sk-test", "model": "gpt-4o"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", out.APIKey)
	assert.Equal(t, "gpt-4o", out.Model)
}
