// Package gate composes the preflight checks that verify prerequisite
// artifacts (PRD, research notes, plan, tasklist, review pack, test logs,
// boundary maps) before a stage entrypoint is allowed to run. Each gate is
// a pure function: the engine never mutates state.
package gate

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/aidd-dev/aidd-orc/internal/hostprofile"
	"github.com/aidd-dev/aidd-orc/internal/runtimeconfig"
)

// Result is the outcome of a single gate check.
type Result struct {
	Name       string
	ReturnCode int // 0 = ok, 2 = block
	Output     string
	Skipped    bool
}

// OK reports whether the gate passed (return code 0, including skips).
func (r Result) OK() bool { return r.ReturnCode == 0 }

func ok(name, output string) Result { return Result{Name: name, ReturnCode: 0, Output: output} }
func skip(name, reason string) Result {
	return Result{Name: name, ReturnCode: 0, Output: reason, Skipped: true}
}
func block(name, output string) Result {
	return Result{Name: name, ReturnCode: 2, Output: "BLOCK: " + output}
}

// Params carries everything a gate needs to evaluate, gathered once by the
// dispatcher per stage invocation.
type Params struct {
	WorkflowRoot  string
	WorkspaceRoot string
	Ticket        string
	SlugHint      string
	Branch        string
	FilePath      string // file currently being edited, for self-edit skips
	WorkItemKey   string
	ScopeKey      string
	Config        runtimeconfig.GatesConfig

	// PluginRoot and Profile are only consumed by QAGate, which is the
	// one gate that shells out to the QA skill runtime.
	PluginRoot string
	Profile    hostprofile.Profile
}

// Gate is a single named, composable preflight capability.
type Gate struct {
	Name string
	Run  func(ctx context.Context, p Params) Result
}

// filterByBranch applies a gate's allow/skip glob lists against p.Branch.
// An empty branch always means "always enabled". Allow lists are
// evaluated first: if non-empty and the branch matches none, the gate is
// skipped; skip lists are then evaluated: a match skips the gate.
func filterByBranch(name, branch string, allow, skipList []string) (Result, bool) {
	if branch == "" {
		return Result{}, false
	}
	if len(allow) > 0 && !matchesAny(branch, allow) {
		return skip(name, "branch "+branch+" not in allow list"), true
	}
	if len(skipList) > 0 && matchesAny(branch, skipList) {
		return skip(name, "branch "+branch+" matches skip list"), true
	}
	return Result{}, false
}

func matchesAny(value string, patterns []string) bool {
	for _, p := range patterns {
		if m, err := path.Match(p, value); err == nil && m {
			return true
		}
	}
	return false
}

// sequences is the per-stage preflight composition table (spec.md §4.4).
// A superset of the original source's narrower run_stage_preflight
// (which only gated implement/review/qa); see DESIGN.md resolved
// ambiguity #2.
var sequences = map[string][]string{
	"idea":        {"analyst"},
	"research":    {"analyst"},
	"plan":        {"analyst", "plan-review"},
	"review-spec": {"analyst", "plan-review", "prd-review"},
	"tasklist":    {"analyst", "plan-review", "prd-review", "research", "tasklist"},
	"implement":   {"analyst", "plan-review", "prd-review", "research", "tasklist", "diff-boundary"},
	"review":      {"analyst", "plan-review", "prd-review", "research", "tasklist", "diff-boundary"},
	"qa":          {"analyst", "plan-review", "prd-review", "research", "tasklist"},
}

var registry = map[string]func(ctx context.Context, p Params) Result{
	"analyst":       AnalystCheck,
	"research":      ResearchCheck,
	"plan-review":   PlanReviewGate,
	"prd-review":    PRDReviewGate,
	"tasklist":      TasklistCheck,
	"diff-boundary": DiffBoundaryCheck,
	"qa":            QAGate,
}

// RunStagePreflight runs the composed gate sequence for stage, with
// short-circuit semantics: the first non-ok gate's result is returned
// immediately and later gates in the sequence are not invoked. A stage
// with no sequence (e.g. spec-interview) is a no-op pass.
func RunStagePreflight(ctx context.Context, stage string, p Params) []Result {
	names, ok := sequences[stage]
	if !ok {
		return nil
	}
	results := make([]Result, 0, len(names))
	for _, name := range names {
		fn := registry[name]
		result := fn(ctx, p)
		results = append(results, result)
		if !result.OK() {
			break
		}
	}
	return results
}

// FinalResult returns the last (and decisive) result from a preflight run,
// or an ok empty result if the sequence was empty.
func FinalResult(results []Result) Result {
	if len(results) == 0 {
		return Result{ReturnCode: 0}
	}
	return results[len(results)-1]
}

func isSelfEdit(filePath, target string) bool {
	if filePath == "" {
		return false
	}
	return strings.HasSuffix(filepath.ToSlash(filePath), filepath.ToSlash(target))
}
