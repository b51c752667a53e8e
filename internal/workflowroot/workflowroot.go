// Package workflowroot resolves the workspace root (the caller's source
// tree, marked by a VCS or project marker) and the workflow root (the
// aidd/ subtree containing docs/config/reports/.cache) by walking parent
// directories, generalizing the teacher's project-root discovery.
package workflowroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSubdir is the conventional workflow-root directory name.
const DefaultSubdir = "aidd"

var workspaceMarkers = []string{".git", ".aidd-plugin", "pyproject.toml"}

// ErrNotFound is returned when no workspace marker exists in any parent
// directory.
var ErrNotFound = errors.New("workflowroot: no workspace marker found in any parent directory")

// Roots holds the resolved workspace and workflow root paths.
type Roots struct {
	WorkspaceRoot string
	WorkflowRoot  string
}

// Resolve walks parents of start (or cwd, if start is empty) looking for a
// workspace marker. If the marker directory contains "<subdir>/docs", that
// child is the workflow root; otherwise "<marker>/<subdir>" is the
// (possibly not-yet-created) workflow root.
func Resolve(start string) (Roots, error) {
	dir, err := absStart(start)
	if err != nil {
		return Roots{}, err
	}

	for {
		if hasAnyMarker(dir) {
			workflowRoot := filepath.Join(dir, DefaultSubdir)
			if !isDir(filepath.Join(workflowRoot, "docs")) {
				// workflowRoot does not yet exist with a docs/ subtree;
				// it is still the correct target for future creation.
			}
			return Roots{WorkspaceRoot: dir, WorkflowRoot: workflowRoot}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Roots{}, ErrNotFound
		}
		dir = parent
	}
}

// RequireWorkflowRoot is Resolve but wraps ErrNotFound with a
// remediation-oriented message, matching the dispatcher's fatal
// configuration-error contract.
func RequireWorkflowRoot(start string) (Roots, error) {
	roots, err := Resolve(start)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Roots{}, fmt.Errorf("no workflow root found: run from inside a directory containing .git, .aidd-plugin, or pyproject.toml")
		}
		return Roots{}, err
	}
	return roots, nil
}

func absStart(start string) (string, error) {
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("workflowroot: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("workflowroot: %w", err)
	}
	return abs, nil
}

func hasAnyMarker(dir string) bool {
	for _, marker := range workspaceMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// RequirePluginRoot resolves the installation directory containing skill
// entrypoints, pointed to by AIDD_ROOT. This is a fatal configuration
// error if unset.
func RequirePluginRoot() (string, error) {
	root := os.Getenv("AIDD_ROOT")
	if root == "" {
		return "", errors.New("AIDD_ROOT is not set")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("workflowroot: AIDD_ROOT: %w", err)
	}
	return abs, nil
}
