// Package scaffold creates a fresh workflow root — the directory layout
// spec.md §6.4 names (docs/, config/, reports/) — deterministically.
// Adapted from the teacher's `orc init` scaffolder: kept its directory
// creation and "Created:" printing idiom, dropped the `claude -p`
// AI-generated-config path entirely (Non-goals exclude prompt authoring).
package scaffold

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aidd-dev/aidd-orc/internal/runtimeconfig"
)

// dirs are the directories created under the workflow root on Init.
var dirs = []string{
	filepath.Join("docs", "prd"),
	filepath.Join("docs", "plan"),
	filepath.Join("docs", "tasklist"),
	filepath.Join("docs", "research"),
	filepath.Join("docs", "spec"),
	"config",
	filepath.Join("reports", "events"),
	filepath.Join("reports", "tests"),
	filepath.Join("reports", "loops"),
	filepath.Join("reports", "context"),
	filepath.Join("reports", "actions"),
}

// Init creates <targetDir>/aidd with the persisted layout and default
// config documents. Returns the paths written, relative to targetDir, for
// CLI display. Errors if the workflow root already exists.
func Init(targetDir string) ([]string, error) {
	workflowRoot := filepath.Join(targetDir, "aidd")
	if _, err := os.Stat(workflowRoot); err == nil {
		return nil, fmt.Errorf("scaffold: %s already exists", workflowRoot)
	}

	var written []string
	for _, d := range dirs {
		full := filepath.Join(workflowRoot, d)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return nil, fmt.Errorf("scaffold: create %s: %w", full, err)
		}
		written = append(written, filepath.Join("aidd", d))
	}

	if err := writeDefaultConfigs(workflowRoot); err != nil {
		return nil, err
	}
	written = append(written,
		filepath.Join("aidd", "config", "gates.json"),
		filepath.Join("aidd", "config", "context_gc.json"),
		filepath.Join("aidd", "config", "conventions.json"),
	)

	gitignore := filepath.Join(workflowRoot, ".gitignore")
	if err := os.WriteFile(gitignore, []byte("reports/\n"), 0o644); err != nil {
		return nil, fmt.Errorf("scaffold: write .gitignore: %w", err)
	}
	written = append(written, filepath.Join("aidd", ".gitignore"))

	return written, nil
}

func writeDefaultConfigs(workflowRoot string) error {
	if err := writeJSONIfAbsent(filepath.Join(workflowRoot, "config", "gates.json"), runtimeconfig.DefaultGatesConfig()); err != nil {
		return err
	}
	if err := writeJSONIfAbsent(filepath.Join(workflowRoot, "config", "context_gc.json"), runtimeconfig.DefaultContextGCConfig()); err != nil {
		return err
	}
	if err := writeJSONIfAbsent(filepath.Join(workflowRoot, "config", "conventions.json"), runtimeconfig.ConventionsConfig{}); err != nil {
		return err
	}
	return nil
}

func writeJSONIfAbsent(path string, v any) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("scaffold: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("scaffold: write %s: %w", path, err)
	}
	return nil
}
