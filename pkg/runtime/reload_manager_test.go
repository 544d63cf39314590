package runtime

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloadManagerDebouncesABurstOfWritesIntoOneCall(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workspace.json"), []byte("{}"), 0o644))

	var calls int32
	rm, err := newReloadManager(dir, slog.Default(), func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	defer rm.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "workspace.json"), []byte(`{"n":`+string(rune('0'+i))+`}`), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReloadManagerWatchesNewlyCreatedSubdirectories(t *testing.T) {
	dir := t.TempDir()

	var calls int32
	rm, err := newReloadManager(dir, slog.Default(), func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	defer rm.Stop()

	sub := filepath.Join(dir, "agents", "writer")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "skill.json"), []byte("{}"), 0o644))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReloadManagerStopReleasesTheWatcher(t *testing.T) {
	dir := t.TempDir()
	rm, err := newReloadManager(dir, slog.Default(), func() error { return nil })
	require.NoError(t, err)

	assert.NoError(t, rm.Stop())
}
