// Package stageresult defines the aidd.stage_result.v1 schema written by
// every stage entrypoint, and the loader the dispatcher/loop runner use to
// read it back — including the scope-mismatch glob-fallback recovery and
// the reason-code-driven block/continue normalization.
package stageresult

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Schema is the only schema version this package writes; v1 readers also
// accept it verbatim since no v2 of stage_result exists (unlike the
// review pack, which has a v1/v2 split).
const Schema = "aidd.stage_result.v1"

// Result values mirror the Python source's three-way verdict.
const (
	ResultDone     = "done"
	ResultContinue = "continue"
	ResultBlocked  = "blocked"
)

// Verdict values, review stage only.
const (
	VerdictShip    = "SHIP"
	VerdictRevise  = "REVISE"
	VerdictBlocked = "BLOCKED"
)

// Hard-block reason codes force Result to "blocked" regardless of what the
// entrypoint wrote.
var hardBlockReasonCodes = map[string]bool{
	"user_approval_required": true,
}

// Warn reason codes downgrade a "blocked" result to "continue" — the
// entrypoint flagged something worth surfacing but not worth halting on.
var warnReasonCodes = map[string]bool{
	"out_of_scope_warn":                    true,
	"no_boundaries_defined_warn":           true,
	"auto_boundary_extend_warn":            true,
	"review_context_pack_placeholder_warn": true,
}

// InvalidPayloadReasonCode is forced onto a Loop Runner step when no valid
// stage result can be loaded for the stage it just ran.
const InvalidPayloadReasonCode = "invalid_loop_step_payload"

// StageResult is the document a stage entrypoint writes on exit.
type StageResult struct {
	Schema        string            `json:"schema"`
	Ticket        string            `json:"ticket"`
	Stage         string            `json:"stage"`
	ScopeKey      string            `json:"scope_key"`
	WorkItemKey   string            `json:"work_item_key"`
	Result        string            `json:"result"`
	Reason        string            `json:"reason,omitempty"`
	ReasonCode    string            `json:"reason_code,omitempty"`
	Verdict       string            `json:"verdict,omitempty"`
	Artifacts     []string          `json:"artifacts,omitempty"`
	Errors        []string          `json:"errors,omitempty"`
	EvidenceLinks map[string]string `json:"evidence_links,omitempty"`
	Producer      string            `json:"producer,omitempty"`
	UpdatedAt     string            `json:"updated_at"`
}

// Path returns the canonical exact-scope path for a stage result file.
func Path(workflowRoot, ticket, scopeKey, stage string) string {
	return filepath.Join(workflowRoot, "reports", "loops", ticket, scopeKey, "stage."+stage+".result.json")
}

// Write serializes result to its canonical path, atomically.
func Write(workflowRoot string, result *StageResult) error {
	result.Schema = Schema
	path := Path(workflowRoot, result.Ticket, result.ScopeKey, result.Stage)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("stageresult: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("stageresult: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("stageresult: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("stageresult: rename: %w", err)
	}
	return nil
}

// LoadOutcome is the result of consuming a stage result file, including
// any scope-mismatch warning surfaced during glob fallback.
type LoadOutcome struct {
	Result            *StageResult
	Path              string
	ScopeMismatchWarn bool
	ExpectedScope     string
	ObservedScope     string
}

// Load implements the three-step consumption algorithm: exact-scope path
// first; otherwise glob for any stage.<stage>.result.json under
// reports/loops/<ticket>/*/ (one directory level), preferring entries whose mtime falls within
// [startedAt-5s, finishedAt+5s], most recent wins; surface a
// scope_key_mismatch_warn when the selected file's scope_key differs from
// expected.
func Load(workflowRoot, ticket, expectedScopeKey, stage string, startedAt, finishedAt time.Time) (*LoadOutcome, error) {
	exactPath := Path(workflowRoot, ticket, expectedScopeKey, stage)
	if data, err := os.ReadFile(exactPath); err == nil {
		var result StageResult
		if err := json.Unmarshal(data, &result); err == nil && isValid(&result, stage) {
			normalize(&result)
			return &LoadOutcome{Result: &result, Path: exactPath, ExpectedScope: expectedScopeKey, ObservedScope: result.ScopeKey}, nil
		}
	}

	pattern := filepath.Join(workflowRoot, "reports", "loops", ticket, "*", "stage."+stage+".result.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("stageresult: glob: %w", err)
	}

	windowStart := startedAt.Add(-5 * time.Second)
	windowEnd := finishedAt.Add(5 * time.Second)

	type candidate struct {
		result   StageResult
		path     string
		mtime    time.Time
		inWindow bool
	}
	var candidates []candidate
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var result StageResult
		if err := json.Unmarshal(data, &result); err != nil || !isValid(&result, stage) {
			continue
		}
		mtime := info.ModTime()
		candidates = append(candidates, candidate{
			result:   result,
			path:     path,
			mtime:    mtime,
			inWindow: !mtime.Before(windowStart) && !mtime.After(windowEnd),
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("stageresult: no valid stage result found for ticket=%s stage=%s", ticket, stage)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].inWindow != candidates[j].inWindow {
			return candidates[i].inWindow
		}
		return candidates[i].mtime.After(candidates[j].mtime)
	})

	chosen := candidates[0]
	normalize(&chosen.result)
	outcome := &LoadOutcome{
		Result:        &chosen.result,
		Path:          chosen.path,
		ExpectedScope: expectedScopeKey,
		ObservedScope: chosen.result.ScopeKey,
	}
	if chosen.result.ScopeKey != "" && chosen.result.ScopeKey != expectedScopeKey {
		outcome.ScopeMismatchWarn = true
	}
	return outcome, nil
}

func isValid(result *StageResult, stage string) bool {
	if result.Schema != Schema {
		return false
	}
	if result.Stage != stage {
		return false
	}
	switch result.Result {
	case ResultDone, ResultContinue, ResultBlocked:
		return true
	default:
		return false
	}
}

// normalize applies the reason-code-driven block/continue downgrade rule
// in place.
func normalize(result *StageResult) {
	if hardBlockReasonCodes[result.ReasonCode] {
		result.Result = ResultBlocked
		return
	}
	if warnReasonCodes[result.ReasonCode] && result.Result == ResultBlocked {
		result.Result = ResultContinue
	}
}

// ForcedInvalidPayload builds the synthetic blocked result the Loop Runner
// uses when no valid stage result could be loaded after a step.
func ForcedInvalidPayload(ticket, stage, scopeKey string, now time.Time) *StageResult {
	return &StageResult{
		Schema:     Schema,
		Ticket:     ticket,
		Stage:      stage,
		ScopeKey:   scopeKey,
		Result:     ResultBlocked,
		ReasonCode: InvalidPayloadReasonCode,
		Reason:     "loop step did not emit a parseable JSON payload",
		UpdatedAt:  now.UTC().Format(time.RFC3339),
	}
}
