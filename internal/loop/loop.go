// Package loop implements the Loop Runner: it wraps the Stage Dispatcher
// into the repeatable implement → review → [revise|ship] cycle, consuming
// each iteration's stage result and deciding block/continue/done.
package loop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/aidd-dev/aidd-orc/internal/activestate"
	"github.com/aidd-dev/aidd-orc/internal/dispatch"
	"github.com/aidd-dev/aidd-orc/internal/runtimeconfig"
	"github.com/aidd-dev/aidd-orc/internal/stageresult"
)

// Exit codes, propagated verbatim from each loop step.
const (
	ExitDone          = 0
	ExitContinue      = 10
	ExitMaxIterations = 11
	ExitBlocked       = 20
	ExitError         = 30
)

// FromQA selects how a QA repair handoff is chosen when entering the loop
// after a blocked QA run.
type FromQA string

const (
	FromQANone   FromQA = ""
	FromQAManual FromQA = "manual"
	FromQAAuto   FromQA = "auto"
)

// Options configures a Run call.
type Options struct {
	Ticket              string
	MaxIterations       int
	SleepSeconds        int
	Runner              string
	StreamMode          string
	FromQA              FromQA
	SelectQAHandoff     string // explicit --select-qa-handoff work item key
	ExplicitWorkItemKey string

	ProfileName string
	Cwd         string
}

// Run drives the dispatcher across implement/review/qa up to
// MaxIterations times, returning the terminal exit code.
func Run(ctx context.Context, opts Options) (int, error) {
	runID := uuid.NewString()
	iteration := 0

	if opts.FromQA != FromQANone {
		if err := applyQARepairSelection(opts); err != nil {
			return ExitBlocked, err
		}
	}

	for {
		iteration++
		if opts.MaxIterations > 0 && iteration > opts.MaxIterations {
			return ExitMaxIterations, nil
		}

		outcome, err := Step(ctx, opts, runID, iteration)
		if err != nil {
			appendRunLog(opts, runID, iteration, stepLogLine{
				Status: "error", ExitCode: ExitError, ReasonCode: "step_error",
			})
			return ExitError, err
		}

		appendRunLog(opts, runID, iteration, stepLogLine{
			Stage:             outcome.Stage,
			ScopeKey:          outcome.ScopeKey,
			Status:            outcome.Result.Result,
			ExitCode:          outcome.ExitCode,
			ReasonCode:        outcome.Result.ReasonCode,
			Runner:            opts.Runner,
			ScopeMismatchWarn: outcome.ScopeMismatchWarn,
		})

		switch outcome.ExitCode {
		case ExitBlocked:
			return ExitBlocked, nil
		case ExitDone:
			cont, nextErr := handleDone(opts, outcome)
			if nextErr != nil {
				return ExitError, nextErr
			}
			if !cont {
				return ExitDone, nil
			}
			// continue looping at implement with the newly selected work item
			continue
		case ExitContinue:
			if opts.SleepSeconds > 0 {
				select {
				case <-ctx.Done():
					return ExitError, ctx.Err()
				case <-time.After(time.Duration(opts.SleepSeconds) * time.Second):
				}
			}
			continue
		default:
			return outcome.ExitCode, nil
		}
	}
}

// StepOutcome is the per-iteration result of invoking the dispatcher and
// consuming the stage result it produced.
type StepOutcome struct {
	Stage             string
	ScopeKey          string
	ExitCode          int
	Result            *stageresult.StageResult
	ScopeMismatchWarn bool
}

// Step runs one loop iteration: dispatch the current stage via the Stage
// Dispatcher, then load and normalize its stage result.
func Step(ctx context.Context, opts Options, runID string, iteration int) (*StepOutcome, error) {
	roots, err := currentRoots(opts)
	if err != nil {
		return nil, err
	}
	state := activestate.Read(roots.workflowRoot)
	if state.Stage == "" {
		state.Stage = "implement"
	}

	startedAt := time.Now()
	result, dispatchErr := dispatch.DispatchStageCommand(ctx, state.Stage, dispatch.Options{
		Ticket:       opts.Ticket,
		ProfileName:  opts.ProfileName,
		Cwd:          opts.Cwd,
		GatesEnabled: true,
	})
	finishedAt := time.Now()

	scopeKey := resolveScopeKeyForState(state, opts.Ticket)

	if dispatchErr != nil {
		return nil, dispatchErr
	}
	if result.ReturnCode == 2 {
		// gate block: synthesize a blocked stage result from the dispatch
		// stderr so the loop log and return path stay uniform.
		forced := &stageresult.StageResult{
			Schema: stageresult.Schema, Ticket: opts.Ticket, Stage: state.Stage, ScopeKey: scopeKey,
			Result: stageresult.ResultBlocked, Reason: result.Stderr, ReasonCode: "gate_blocked",
			UpdatedAt: finishedAt.UTC().Format(time.RFC3339),
		}
		return &StepOutcome{Stage: state.Stage, ScopeKey: scopeKey, ExitCode: ExitBlocked, Result: forced}, nil
	}

	loaded, loadErr := stageresult.Load(roots.workflowRoot, opts.Ticket, scopeKey, state.Stage, startedAt, finishedAt)
	var sr *stageresult.StageResult
	mismatchWarn := false
	if loadErr != nil {
		sr = stageresult.ForcedInvalidPayload(opts.Ticket, state.Stage, scopeKey, finishedAt)
	} else {
		sr = loaded.Result
		mismatchWarn = loaded.ScopeMismatchWarn
		if state.Stage == "review" && (sr.Result == stageresult.ResultDone || sr.Result == stageresult.ResultContinue) {
			requireV2 := false
			if gatesCfg, _, _, cfgErr := runtimeconfig.Load(roots.workflowRoot); cfgErr == nil {
				requireV2 = gatesCfg.RequireReviewPackV2
			}
			if err := validateReviewPackIfPresent(roots.workflowRoot, opts.Ticket, scopeKey, sr.Verdict, requireV2); err != nil {
				sr.Result = stageresult.ResultBlocked
				sr.ReasonCode = "review_pack_invalid"
				sr.Reason = err.Error()
			}
		}
	}

	exitCode := exitCodeForResult(sr)

	// Advance the cycle from the stage result, mutating active state only
	// through the store: implement always hands off to review next, and a
	// review verdict asking for changes hands back to implement (the
	// revise edge). review+done is left to handleDone, which picks the
	// next work item or ships; any other stage/result pairing (qa's
	// repair-selection flow, or a blocked result) passes through as-is.
	nextStage := nextStageFor(state.Stage, sr.Result)
	if nextStage != "" {
		if _, err := activestate.Write(roots.workflowRoot, activestate.Update{Stage: &nextStage}, time.Now); err != nil {
			return nil, err
		}
		exitCode = ExitContinue
	}

	return &StepOutcome{Stage: state.Stage, ScopeKey: scopeKey, ExitCode: exitCode, Result: sr, ScopeMismatchWarn: mismatchWarn}, nil
}

// nextStageFor computes the stage transition implied by a stage result, per
// the implement -> review -> [revise|ship] cycle. Returns "" when the
// current (stage, result) pair implies no transition here: review+done
// terminates into handleDone, and anything else (qa, blocked) is left to
// its own handling.
func nextStageFor(stage string, result string) string {
	switch {
	case stage == "implement" && (result == stageresult.ResultContinue || result == stageresult.ResultDone):
		return "review"
	case stage == "review" && result == stageresult.ResultContinue:
		return "implement"
	default:
		return ""
	}
}

func exitCodeForResult(sr *stageresult.StageResult) int {
	switch sr.Result {
	case stageresult.ResultDone:
		return ExitDone
	case stageresult.ResultBlocked:
		return ExitBlocked
	default:
		return ExitContinue
	}
}

type rootsHandle struct {
	workflowRoot  string
	workspaceRoot string
}

func currentRoots(opts Options) (rootsHandle, error) {
	// The dispatcher resolves roots internally per call; the loop runner
	// needs them too for direct stage-result/tasklist reads between
	// dispatches, so resolve once here the same way.
	roots, err := resolveRootsForCwd(opts.Cwd)
	if err != nil {
		return rootsHandle{}, err
	}
	return rootsHandle{workflowRoot: roots.WorkflowRoot, workspaceRoot: roots.WorkspaceRoot}, nil
}

func resolveScopeKeyForState(state activestate.State, ticket string) string {
	return resolveScopeKey(state.WorkItem, ticket)
}

// handleDone implements the review->done transition: select the next open
// work item from the tasklist, or ship if none remains.
func handleDone(opts Options, outcome *StepOutcome) (bool, error) {
	if outcome.Stage != "review" {
		return false, nil
	}

	roots, err := currentRoots(opts)
	if err != nil {
		return false, err
	}

	next, found, err := SelectNextWorkItem(roots.workflowRoot, opts.Ticket, outcome.ScopeKey)
	if err != nil {
		return false, err
	}
	if !found {
		clearActiveMode(roots.workflowRoot)
		return false, nil
	}

	stage := "implement"
	wi := "iteration_id=" + next
	if _, err := activestate.Write(roots.workflowRoot, activestate.Update{Stage: &stage, WorkItem: &wi}, time.Now); err != nil {
		return false, err
	}
	return true, nil
}

func clearActiveMode(workflowRoot string) {
	path := filepath.Join(workflowRoot, "docs", ".active_mode")
	_ = os.Remove(path)
}

// applyQARepairSelection resolves a work item to repair after a blocked QA
// run and writes it as the new active work item at stage=implement.
// Per spec.md's Open Question decision: when mode=auto and an explicit
// --work-item-key is also supplied and they disagree, the caller must see
// reason_code=qa_repair_ambiguous rather than a silent preference.
func applyQARepairSelection(opts Options) error {
	roots, err := resolveRootsForCwd(opts.Cwd)
	if err != nil {
		return err
	}

	candidate := opts.SelectQAHandoff
	if opts.FromQA == FromQAAuto {
		autoPicked, found, err := firstQualifyingHandoff(roots.WorkflowRoot, opts.Ticket)
		if err != nil {
			return err
		}
		if found {
			if candidate != "" && candidate != autoPicked {
				return fmt.Errorf("loop: qa_repair_ambiguous: --select-qa-handoff=%s disagrees with auto-selected %s", candidate, autoPicked)
			}
			candidate = autoPicked
		}
		if opts.ExplicitWorkItemKey != "" && candidate != "" && opts.ExplicitWorkItemKey != candidate {
			return fmt.Errorf("loop: qa_repair_ambiguous: --work-item-key=%s disagrees with auto-selected %s", opts.ExplicitWorkItemKey, candidate)
		}
		if candidate == "" {
			candidate = opts.ExplicitWorkItemKey
		}
	}
	if candidate == "" {
		return fmt.Errorf("loop: no qualifying QA handoff found to repair")
	}

	stage := "implement"
	wi := "iteration_id=" + candidate
	_, err = activestate.Write(roots.WorkflowRoot, activestate.Update{Stage: &stage, WorkItem: &wi}, time.Now)
	return err
}

var handoffMarkerPattern = regexp.MustCompile(`<!--\s*handoff:qa\s+(\S+)\s*-->`)

func firstQualifyingHandoff(workflowRoot, ticket string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(workflowRoot, "docs", "tasklist", ticket+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("loop: read tasklist: %w", err)
	}
	matches := handoffMarkerPattern.FindAllStringSubmatch(string(data), -1)
	if len(matches) == 0 {
		return "", false, nil
	}
	return matches[0][1], true, nil
}

func validateReviewPackIfPresent(workflowRoot, ticket, scopeKey, verdict string, requireV2 bool) error {
	// Out-of-band helper kept thin deliberately: full schema validation
	// lives in internal/reviewpack; this wrapper just adapts its error.
	return validateReviewPack(workflowRoot, ticket, scopeKey, verdict, requireV2)
}

type stepLogLine struct {
	Stage             string
	ScopeKey          string
	Status            string
	ExitCode          int
	ReasonCode        string
	Runner            string
	ScopeMismatchWarn bool
}

func appendRunLog(opts Options, runID string, iteration int, line stepLogLine) {
	roots, err := resolveRootsForCwd(opts.Cwd)
	if err != nil {
		return
	}
	logPath := filepath.Join(roots.WorkflowRoot, "reports", "loops", opts.Ticket, "loop.run.log")
	_ = os.MkdirAll(filepath.Dir(logPath), 0o755)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	entry := fmt.Sprintf(
		"ts=%s run_id=%s ticket=%s iteration=%d stage=%s scope_key=%s status=%s exit_code=%d reason_code=%s runner=%s",
		time.Now().UTC().Format(time.RFC3339), runID, opts.Ticket, iteration, line.Stage, line.ScopeKey, line.Status, line.ExitCode, line.ReasonCode, line.Runner,
	)
	if line.ScopeMismatchWarn {
		entry += " scope_key_mismatch_warn=true"
	}
	fmt.Fprintln(f, entry)
}
