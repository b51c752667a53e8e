package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCallsRenderOnFileWrite(t *testing.T) {
	root := t.TempDir()
	docsDir := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docsDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "reports", "loops"), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, root, func() { calls <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, ".active.json"), []byte("{}"), 0o644))

	select {
	case <-calls:
	case <-time.After(3 * time.Second):
		t.Fatal("expected render to be called after file write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunReturnsNilImmediatelyOnCancelledContext(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "reports", "loops"), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, root, func() {})
	assert.NoError(t, err)
}

func TestRunToleratesMissingWatchDirs(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Neither docs/ nor reports/loops/ exist; Run should still return
	// cleanly rather than erroring on the missing watch targets.
	err := Run(ctx, root, func() {})
	assert.NoError(t, err)
}
