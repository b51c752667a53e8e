// Package runtimeconfig loads the three small, closed JSON configuration
// documents under <workflow_root>/config/: gate thresholds, hook/context-gc
// tuning, and path-convention overrides. These are internally-defined
// schemas with no external producer, so plain encoding/json is used rather
// than a third-party parser (see DESIGN.md standard-library
// justifications).
package runtimeconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GatesConfig tunes gate thresholds referenced by internal/gate.
type GatesConfig struct {
	AnalystMinQuestions   int      `json:"analyst_min_questions"`
	ResearchFreshnessDays int      `json:"research_freshness_days"`
	PlanReviewStatus      string   `json:"plan_review_status"`
	PRDReviewStatus       string   `json:"prd_review_status"`
	RequireReviewPackV2   bool     `json:"require_review_pack_v2"`
	BranchAllow           []string `json:"branch_allow"`
	BranchSkip            []string `json:"branch_skip"`
}

// DefaultGatesConfig mirrors the conventional defaults documented in
// spec.md §4.4 (minimum question count, default READY approval status).
func DefaultGatesConfig() GatesConfig {
	return GatesConfig{
		AnalystMinQuestions:   3,
		ResearchFreshnessDays: 14,
		PlanReviewStatus:      "READY",
		PRDReviewStatus:       "READY",
		RequireReviewPackV2:   false,
	}
}

// ContextGCConfig tunes the Hook Policy's budget/output-wrapping behavior.
type ContextGCConfig struct {
	Mode                   string   `json:"mode"` // full | light | off
	MaxReadBytes           int      `json:"max_read_bytes"`
	BashOutputGuardEnabled bool     `json:"bash_output_guard_enabled"`
	TailLines              int      `json:"tail_lines"`
	LogDir                 string   `json:"log_dir"`
	DangerousBashPatterns  []string `json:"dangerous_bash_patterns"`
	LargeOutputPatterns    []string `json:"large_output_patterns"`
	DependencySegments     []string `json:"dependency_segments"`
	StampRateLimitSeconds  int      `json:"stamp_rate_limit_seconds"`
	ContextTokenWarnAt     int      `json:"context_token_warn_at"`
	ContextTokenBlockAt    int      `json:"context_token_block_at"`
}

// DefaultContextGCConfig mirrors spec.md §4.6's described defaults.
func DefaultContextGCConfig() ContextGCConfig {
	return ContextGCConfig{
		Mode:                   "full",
		MaxReadBytes:           200_000,
		BashOutputGuardEnabled: true,
		TailLines:              200,
		LogDir:                 "aidd/reports/logs",
		DangerousBashPatterns: []string{
			`rm\s+-rf\b`,
			`git\s+reset\s+--hard\b`,
			`git\s+push\s+--force\b`,
			`git\s+clean\s+-[a-z]*f[a-z]*d\b`,
			`:\(\)\s*\{.*\};\s*:`,
		},
		LargeOutputPatterns: []string{
			`\bnpm\s+(test|run\s+build)\b`,
			`\bgo\s+(test|build)\b`,
			`\bpytest\b`,
			`\bmake\b`,
		},
		DependencySegments:    []string{"node_modules", "vendor", "third_party", "site-packages", ".venv"},
		StampRateLimitSeconds: 300,
		ContextTokenWarnAt:    80,
		ContextTokenBlockAt:   95,
	}
}

// ConventionsConfig carries path-convention overrides; empty fields mean
// "use the built-in convention".
type ConventionsConfig struct {
	DocsSubdir    string `json:"docs_subdir"`
	ReportsSubdir string `json:"reports_subdir"`
	ConfigSubdir  string `json:"config_subdir"`
}

// Load reads all three config documents, falling back to their defaults
// when the file is absent. A malformed file is a configuration error.
func Load(workflowRoot string) (GatesConfig, ContextGCConfig, ConventionsConfig, error) {
	gates := DefaultGatesConfig()
	if err := loadInto(filepath.Join(workflowRoot, "config", "gates.json"), &gates); err != nil {
		return gates, ContextGCConfig{}, ConventionsConfig{}, err
	}

	contextGC := DefaultContextGCConfig()
	if err := loadInto(filepath.Join(workflowRoot, "config", "context_gc.json"), &contextGC); err != nil {
		return gates, contextGC, ConventionsConfig{}, err
	}

	var conventions ConventionsConfig
	if err := loadInto(filepath.Join(workflowRoot, "config", "conventions.json"), &conventions); err != nil {
		return gates, contextGC, conventions, err
	}

	return gates, contextGC, conventions, nil
}

func loadInto(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("runtimeconfig: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("runtimeconfig: parse %s: %w", path, err)
	}
	return nil
}
