// Package watch re-invokes a render callback whenever the active-state
// document or a stage result file changes on disk, backing the `watch`
// CLI command. Grounded on jordigilh-kubernaut's fsnotify dependency —
// the pack's only real filesystem-watcher usage.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses bursts of fsnotify events (a single dispatch call
// can touch the active-state file and several stage-result files within
// milliseconds) into one render.
const debounce = 150 * time.Millisecond

// Run watches workflowRoot's docs/ and reports/loops/ subtrees and calls
// render once per burst of create/write/remove events (see debounce),
// until ctx is cancelled.
func Run(ctx context.Context, workflowRoot string, render func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range []string{
		filepath.Join(workflowRoot, "docs"),
		filepath.Join(workflowRoot, "reports", "loops"),
	} {
		_ = addRecursive(w, dir)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) {
				pending = time.After(debounce)
			}
		case <-pending:
			render()
			pending = nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			_ = err
		}
	}
}

// addRecursive walks dir adding every subdirectory to the watcher;
// fsnotify watches are not recursive by default.
func addRecursive(w *fsnotify.Watcher, dir string) error {
	if err := w.Add(dir); err != nil {
		return err
	}
	entries, err := readDirNames(dir)
	if err != nil {
		return nil
	}
	for _, name := range entries {
		sub := filepath.Join(dir, name)
		if isDir(sub) {
			_ = addRecursive(w, sub)
		}
	}
	return nil
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
