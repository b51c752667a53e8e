// Package dispatch implements the Stage Dispatcher: it resolves an
// incoming command (including host-IDE-prefixed and legacy-aliased forms)
// to a canonical stage, runs the stage's preflight gates, updates the
// active-workflow state, and launches the stage entrypoint as a
// subprocess.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aidd-dev/aidd-orc/internal/activestate"
	"github.com/aidd-dev/aidd-orc/internal/command"
	"github.com/aidd-dev/aidd-orc/internal/gate"
	"github.com/aidd-dev/aidd-orc/internal/hostprofile"
	"github.com/aidd-dev/aidd-orc/internal/runtimeconfig"
	"github.com/aidd-dev/aidd-orc/internal/scopekey"
	"github.com/aidd-dev/aidd-orc/internal/vcsinfo"
	"github.com/aidd-dev/aidd-orc/internal/workflowroot"
)

// DefaultProjectSubdir is the conventional workflow-root directory name.
const DefaultProjectSubdir = workflowroot.DefaultSubdir

// Spec is the static per-canonical-command dispatch table entry.
type Spec struct {
	Command          string
	Stage            string // "" for stageless commands (aidd-init-flow)
	Entrypoint       string
	TicketRequired   bool
	InjectTicketFlag bool
	RequiresWorkflow bool
	SetFeature       bool
	SetStage         bool
}

// Specs is the static, closed dispatch table — commands, legacy aliases,
// and host profiles are enumerated at build time, not discovered at
// runtime (spec.md §9 "Dynamic dispatch tables → static tables").
var Specs = map[string]Spec{
	"aidd-init-flow": {
		Command:          "aidd-init-flow",
		Entrypoint:       "skills/aidd-init/runtime/init.py",
		TicketRequired:   false,
		InjectTicketFlag: false,
		RequiresWorkflow: false,
		SetFeature:       false,
		SetStage:         false,
	},
	"idea-new": {
		Command: "idea-new", Stage: "idea",
		Entrypoint:     "skills/idea-new/runtime/analyst_check.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"researcher": {
		Command: "researcher", Stage: "research",
		Entrypoint:     "skills/researcher/runtime/research.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"plan-new": {
		Command: "plan-new", Stage: "plan",
		Entrypoint:     "skills/plan-new/runtime/research_check.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"review-spec": {
		Command: "review-spec", Stage: "review-spec",
		Entrypoint:     "skills/review-spec/runtime/prd_review_cli.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"spec-interview": {
		Command: "spec-interview", Stage: "spec-interview",
		Entrypoint:     "skills/spec-interview/runtime/spec_interview.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"tasks-new": {
		Command: "tasks-new", Stage: "tasklist",
		Entrypoint:     "skills/tasks-new/runtime/tasks_new.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"implement": {
		Command: "implement", Stage: "implement",
		Entrypoint:     "skills/implement/runtime/implement_run.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"review": {
		Command: "review", Stage: "review",
		Entrypoint:     "skills/review/runtime/review_run.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
	"qa": {
		Command: "qa", Stage: "qa",
		Entrypoint:     "skills/qa/runtime/qa.py",
		TicketRequired: true, InjectTicketFlag: true, RequiresWorkflow: true, SetFeature: true, SetStage: true,
	},
}

// LegacyAliases maps legacy command names to their canonical replacement.
var LegacyAliases = map[string]string{
	"aidd-idea-flow":      "idea-new",
	"aidd-research-flow":  "researcher",
	"aidd-plan-flow":      "plan-new",
	"aidd-implement-flow": "implement",
	"aidd-review-flow":    "review",
	"aidd-qa-flow":        "qa",
	"aidd-init":           "aidd-init-flow",
}

var separatorFixer = strings.NewReplacer("_", "-", " ", "-", "\t", "-", "\n", "-", "\r", "-")

// NormalizeCommandName strips the host prefix, lowercases, normalizes
// separators, collapses repeated hyphens, and trims leading/trailing
// hyphens. It is idempotent.
func NormalizeCommandName(rawCommand string, profile hostprofile.Profile) string {
	stripped := hostprofile.StripHostPrefix(rawCommand, profile)
	if stripped == "" {
		return ""
	}
	normalized := separatorFixer.Replace(strings.ToLower(strings.TrimSpace(stripped)))
	for strings.Contains(normalized, "--") {
		normalized = strings.ReplaceAll(normalized, "--", "-")
	}
	return strings.Trim(normalized, "-")
}

// Target is the resolved outcome of NormalizeCommandName + alias/spec
// lookup.
type Target struct {
	RawCommand       string
	RequestedCommand string
	ResolvedCommand  string
	IsLegacyAlias    bool
	Spec             Spec
}

// ResolveDispatchTarget normalizes command and resolves it through the
// legacy-alias table into a Spec. Unknown commands return an error naming
// the sorted list of supported commands.
func ResolveDispatchTarget(rawCommand string, profile hostprofile.Profile) (Target, error) {
	requested := NormalizeCommandName(rawCommand, profile)
	if requested == "" {
		return Target{}, fmt.Errorf("dispatch: command name is required")
	}

	resolved := requested
	if alias, ok := LegacyAliases[requested]; ok {
		resolved = alias
	}

	spec, ok := Specs[resolved]
	if !ok {
		names := make([]string, 0, len(Specs))
		for k := range Specs {
			names = append(names, k)
		}
		sort.Strings(names)
		return Target{}, fmt.Errorf("dispatch: unsupported stage command %q. Supported: %s", rawCommand, strings.Join(names, ", "))
	}

	return Target{
		RawCommand:       rawCommand,
		RequestedCommand: requested,
		ResolvedCommand:  resolved,
		IsLegacyAlias:    resolved != requested,
		Spec:             spec,
	}, nil
}

// Result is the outcome of a full dispatch_stage_command call.
type Result struct {
	Target        Target
	Profile       string
	Ticket        string
	WorkspaceRoot string
	WorkflowRoot  string
	ReturnCode    int
	Stdout        string
	Stderr        string
	Command       []string
}

// Options configures a single dispatch call.
type Options struct {
	Ticket         string
	SlugHint       string
	Argv           []string
	Cwd            string
	ProfileName    string
	Check          bool
	GatesEnabled   bool // AIDD_STAGE_DISPATCH_GATES=1
	BranchOverride string
}

// DispatchStageCommand implements spec.md §4.5's seven-step algorithm:
// resolve target, resolve roots, resolve ticket, preflight, update active
// state, launch, return.
func DispatchStageCommand(ctx context.Context, rawCommand string, opts Options) (*Result, error) {
	profile, err := hostprofile.SelectProfile(rawCommand, opts.ProfileName)
	if err != nil {
		return nil, err
	}

	target, err := ResolveDispatchTarget(rawCommand, profile)
	if err != nil {
		return nil, err
	}

	pluginRoot, err := workflowroot.RequirePluginRoot()
	if err != nil {
		return nil, err
	}

	var workspaceRoot, projectRoot string
	if target.Spec.RequiresWorkflow {
		roots, err := workflowroot.RequireWorkflowRoot(opts.Cwd)
		if err != nil {
			return nil, err
		}
		workspaceRoot, projectRoot = roots.WorkspaceRoot, roots.WorkflowRoot
	} else {
		cwd := opts.Cwd
		if cwd == "" {
			cwd, err = os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("dispatch: %w", err)
			}
		}
		abs, err := filepath.Abs(cwd)
		if err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
		workspaceRoot = abs
		projectRoot = filepath.Join(abs, DefaultProjectSubdir)
	}

	effectiveTicket := resolveTicket(projectRoot, opts.Ticket)
	if target.Spec.TicketRequired && effectiveTicket == "" {
		return nil, fmt.Errorf("dispatch: ticket is required for %q; pass --ticket or set docs/.active.json first", target.ResolvedCommand)
	}

	env := command.BuildRuntimeEnv(pluginRoot, profile, nil, nil)

	if opts.GatesEnabled && effectiveTicket != "" && target.Spec.Stage != "" {
		gatesCfg, _, _, err := runtimeconfig.Load(projectRoot)
		if err != nil {
			return nil, err
		}
		branch := opts.BranchOverride
		if branch == "" {
			branch = vcsinfo.Branch(ctx, workspaceRoot)
		}
		state := activestate.Read(projectRoot)
		params := gate.Params{
			WorkflowRoot:  projectRoot,
			WorkspaceRoot: workspaceRoot,
			Ticket:        effectiveTicket,
			SlugHint:      state.SlugHint,
			Branch:        branch,
			WorkItemKey:   state.WorkItem,
			ScopeKey:      scopekey.Resolve(state.WorkItem, effectiveTicket),
			Config:        gatesCfg,
			PluginRoot:    pluginRoot,
			Profile:       profile,
		}
		results := gate.RunStagePreflight(ctx, target.Spec.Stage, params)
		if final := gate.FinalResult(results); !final.OK() {
			return &Result{
				Target:        target,
				Profile:       profile.Name,
				Ticket:        effectiveTicket,
				WorkspaceRoot: workspaceRoot,
				WorkflowRoot:  projectRoot,
				ReturnCode:    final.ReturnCode,
				Stderr:        final.Output,
			}, nil
		}
	}

	now := time.Now
	if target.Spec.SetFeature && effectiveTicket != "" {
		t := effectiveTicket
		update := activestate.Update{Ticket: &t}
		if opts.SlugHint != "" {
			s := activestate.NormalizeSlug(opts.SlugHint)
			update.SlugHint = &s
		}
		if _, err := activestate.Write(projectRoot, update, now); err != nil {
			return nil, fmt.Errorf("dispatch: update active ticket: %w", err)
		}
	}
	if target.Spec.SetStage && target.Spec.Stage != "" {
		s := target.Spec.Stage
		if _, err := activestate.Write(projectRoot, activestate.Update{Stage: &s}, now); err != nil {
			return nil, fmt.Errorf("dispatch: update active stage: %w", err)
		}
	}

	scriptPath := filepath.Join(pluginRoot, target.Spec.Entrypoint)
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("dispatch: entrypoint not found: %s", scriptPath)
	}

	stageArgv := append([]string{}, opts.Argv...)
	if target.Spec.InjectTicketFlag && effectiveTicket != "" && !containsFlag(stageArgv, "--ticket") {
		stageArgv = append([]string{"--ticket", effectiveTicket}, stageArgv...)
	}
	if opts.SlugHint != "" && !containsFlag(stageArgv, "--slug-hint") {
		stageArgv = append([]string{"--slug-hint", activestate.NormalizeSlug(opts.SlugHint)}, stageArgv...)
	}

	result, err := command.RunPython(ctx, scriptPath, stageArgv, command.Options{
		Cwd:            workspaceRoot,
		Env:            env,
		TimeoutSec:     profile.TimeoutSec,
		MaxStdoutBytes: profile.MaxStdoutBytes,
		MaxStderrBytes: profile.MaxStderrBytes,
		Check:          opts.Check,
		ErrorContext:   fmt.Sprintf("dispatch failed for %q", target.ResolvedCommand),
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Target:        target,
		Profile:       profile.Name,
		Ticket:        effectiveTicket,
		WorkspaceRoot: workspaceRoot,
		WorkflowRoot:  projectRoot,
		ReturnCode:    result.ReturnCode,
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		Command:       result.Command,
	}, nil
}

func resolveTicket(projectRoot, provided string) string {
	provided = strings.TrimSpace(provided)
	if provided != "" {
		return provided
	}
	return strings.TrimSpace(activestate.ReadActiveTicket(projectRoot))
}

func containsFlag(argv []string, flag string) bool {
	prefix := flag + "="
	for _, item := range argv {
		if item == flag || strings.HasPrefix(item, prefix) {
			return true
		}
	}
	return false
}
