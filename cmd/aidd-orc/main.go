// Command aidd-orc is the CLI/hook process boundary: it wires the Stage
// Dispatcher, Loop Runner, and Hook Policy into the host IDE as ordinary
// subprocess invocations, the same urfave/cli/v3 command-table idiom the
// teacher used for its phase runner.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aidd-dev/aidd-orc/internal/activestate"
	"github.com/aidd-dev/aidd-orc/internal/dispatch"
	"github.com/aidd-dev/aidd-orc/internal/doctor"
	"github.com/aidd-dev/aidd-orc/internal/hookpolicy"
	"github.com/aidd-dev/aidd-orc/internal/loop"
	"github.com/aidd-dev/aidd-orc/internal/obslog"
	"github.com/aidd-dev/aidd-orc/internal/runtimeconfig"
	"github.com/aidd-dev/aidd-orc/internal/scaffold"
	"github.com/aidd-dev/aidd-orc/internal/scopekey"
	"github.com/aidd-dev/aidd-orc/internal/ux"
	"github.com/aidd-dev/aidd-orc/internal/watch"
	"github.com/aidd-dev/aidd-orc/internal/workflowroot"
	cli "github.com/urfave/cli/v3"
)

var log = obslog.New()

func main() {
	app := &cli.Command{
		Name:  "aidd-orc",
		Usage: "Stage dispatch and gate engine for the AIDD workflow",
		Commands: []*cli.Command{
			dispatchCmd(),
			loopCmd(),
			hookCmd(),
			statusCmd(),
			watchCmd(),
			initCmd(),
			doctorCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		code := exitCodeForError(err)
		if os.Getenv("AIDD_DEBUG") == "1" {
			fmt.Fprintf(os.Stderr, "%s[aidd] ERROR:%s %+v\n", ux.Red, ux.Reset, err)
		} else {
			fmt.Fprintf(os.Stderr, "%s[aidd] ERROR:%s %v\n", ux.Red, ux.Reset, err)
		}
		os.Exit(code)
	}
}

// exitError carries a specific process exit code up through cli's Action
// error return, per spec.md §6.1's exit-code contract.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCodeForError(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 30
}

func dispatchCmd() *cli.Command {
	return &cli.Command{
		Name:      "dispatch",
		Usage:     "Resolve and run a stage command",
		ArgsUsage: "<stage-command> [ticket] [-- argv...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ticket"},
			&cli.StringFlag{Name: "slug-hint"},
			&cli.StringFlag{Name: "profile"},
			&cli.StringFlag{Name: "branch"},
			&cli.StringFlag{Name: "format"},
			&cli.StringFlag{Name: "stream"},
			&cli.BoolFlag{Name: "no-gates"},
			&cli.BoolFlag{Name: "check"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return fmt.Errorf("dispatch: stage-command argument is required")
			}
			rawCommand := args[0]
			ticket := cmd.String("ticket")
			argv := args[1:]
			if ticket == "" && len(args) > 1 {
				ticket = args[1]
				argv = args[2:]
			}
			if format := cmd.String("format"); format != "" {
				argv = append(argv, "--format", format)
			}
			if stream := cmd.String("stream"); stream != "" {
				argv = append(argv, "--stream", stream)
			}

			result, err := dispatch.DispatchStageCommand(ctx, rawCommand, dispatch.Options{
				Ticket:         ticket,
				SlugHint:       cmd.String("slug-hint"),
				Argv:           argv,
				ProfileName:    cmd.String("profile"),
				Check:          cmd.Bool("check"),
				GatesEnabled:   os.Getenv("AIDD_STAGE_DISPATCH_GATES") == "1" && !cmd.Bool("no-gates"),
				BranchOverride: cmd.String("branch"),
			})
			if err != nil {
				return &exitError{code: 30, err: err}
			}

			if result.Stdout != "" {
				fmt.Fprint(os.Stdout, result.Stdout)
			}
			if result.Stderr != "" {
				fmt.Fprint(os.Stderr, result.Stderr)
			}
			if result.ReturnCode != 0 {
				return &exitError{code: mapReturnCode(result.ReturnCode), err: fmt.Errorf("dispatch: %s exited %d", result.Target.ResolvedCommand, result.ReturnCode)}
			}
			return nil
		},
	}
}

func mapReturnCode(rc int) int {
	switch rc {
	case 124, 127:
		return rc
	default:
		return 2
	}
}

func loopCmd() *cli.Command {
	return &cli.Command{
		Name:      "loop",
		Usage:     "Run the implement -> review -> [revise|ship] cycle",
		ArgsUsage: "<ticket>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-iterations", Value: 20},
			&cli.IntFlag{Name: "sleep-seconds", Value: 0},
			&cli.StringFlag{Name: "runner"},
			&cli.StringFlag{Name: "stream-mode", Value: "text"},
			&cli.StringFlag{Name: "from-qa"},
			&cli.StringFlag{Name: "select-qa-handoff"},
			&cli.StringFlag{Name: "work-item-key"},
			&cli.StringFlag{Name: "profile"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ticket := cmd.Args().First()
			if ticket == "" {
				return fmt.Errorf("loop: ticket argument is required")
			}

			opts := loop.Options{
				Ticket:              ticket,
				MaxIterations:       int(cmd.Int("max-iterations")),
				SleepSeconds:        int(cmd.Int("sleep-seconds")),
				Runner:              cmd.String("runner"),
				StreamMode:          cmd.String("stream-mode"),
				FromQA:              loop.FromQA(cmd.String("from-qa")),
				SelectQAHandoff:     cmd.String("select-qa-handoff"),
				ExplicitWorkItemKey: cmd.String("work-item-key"),
				ProfileName:         cmd.String("profile"),
			}

			ux.StageHeader("loop", ticket)
			started := time.Now()
			code, err := loop.Run(ctx, opts)
			if err != nil {
				ux.StageFail("loop", err.Error())
				return &exitError{code: code, err: err}
			}
			switch code {
			case loop.ExitDone:
				ux.Success(ticket)
			case loop.ExitBlocked:
				ux.StageBlocked("loop", "blocked", "gate or stage result blocked this run")
			case loop.ExitMaxIterations:
				ux.StageFail("loop", "max iterations reached")
			default:
				ux.StageComplete("loop", time.Since(started))
			}
			if code != loop.ExitDone {
				return &exitError{code: code, err: fmt.Errorf("loop exited with code %d", code)}
			}
			return nil
		},
	}
}

func hookCmd() *cli.Command {
	return &cli.Command{
		Name:      "hook",
		Usage:     "Evaluate a PreToolUse/Stop/UserPromptSubmit hook event",
		ArgsUsage: "<event>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			event := cmd.Args().First()
			if event == "" {
				return fmt.Errorf("hook: event argument is required")
			}

			payload, err := readHookPayload()
			if err != nil {
				return &exitError{code: 30, err: err}
			}

			var hctx hookpolicy.HookContext
			if err := json.Unmarshal(payload, &hctx); err != nil {
				return &exitError{code: 2, err: fmt.Errorf("hook: parse payload: %w", err)}
			}
			hctx.HookEventName = event

			roots, err := workflowroot.Resolve(hctx.Cwd)
			if err != nil {
				roots, err = workflowroot.Resolve("")
				if err != nil {
					return &exitError{code: 30, err: err}
				}
			}
			state := activestate.Read(roots.WorkflowRoot)
			scope := hookpolicy.ActiveScope{
				Ticket:      state.Ticket,
				Stage:       state.Stage,
				ScopeKey:    scopekey.Resolve(state.WorkItem, state.Ticket),
				WorkItemKey: state.WorkItem,
			}

			mode := hookpolicy.ResolveMode()
			_, cgCfg, _, err := runtimeconfig.Load(roots.WorkflowRoot)
			if err != nil {
				return &exitError{code: 30, err: err}
			}

			decision, err := hookpolicy.Decide(roots.WorkflowRoot, scope, mode, cgCfg, hctx)
			if err != nil {
				return &exitError{code: 30, err: err}
			}

			out, _ := json.Marshal(decision)
			fmt.Fprintln(os.Stdout, string(out))
			if decision.Action == hookpolicy.ActionDeny {
				return &exitError{code: 2, err: fmt.Errorf("hook: denied: %s", decision.Reason)}
			}
			return nil
		},
	}
}

func readHookPayload() ([]byte, error) {
	if raw := os.Getenv("HOOK_PAYLOAD"); raw != "" {
		return []byte(raw), nil
	}
	if raw := os.Getenv("AIDD_HOOK_PAYLOAD"); raw != "" {
		return []byte(raw), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("hook: read stdin: %w", err)
	}
	return data, nil
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Print the active workflow state and stage reports",
		ArgsUsage: "[ticket]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			roots, err := workflowroot.RequireWorkflowRoot("")
			if err != nil {
				return &exitError{code: 30, err: err}
			}
			state := activestate.Read(roots.WorkflowRoot)
			ticket := cmd.Args().First()
			if ticket == "" {
				ticket = state.Ticket
			}
			ux.RenderStatus(roots.WorkflowRoot, state, ticket)
			ux.CanonicalStagesHint(state.Stage)
			return nil
		},
	}
}

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Re-render status whenever active state or stage results change",
		ArgsUsage: "[ticket]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			roots, err := workflowroot.RequireWorkflowRoot("")
			if err != nil {
				return &exitError{code: 30, err: err}
			}
			ticket := cmd.Args().First()
			render := func() {
				state := activestate.Read(roots.WorkflowRoot)
				t := ticket
				if t == "" {
					t = state.Ticket
				}
				fmt.Print("\033[H\033[2J")
				ux.RenderStatus(roots.WorkflowRoot, state, t)
			}
			render()
			return watch.Run(ctx, roots.WorkflowRoot, render)
		},
	}
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Scaffold a workflow root at ./aidd",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "."},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			written, err := scaffold.Init(cmd.String("dir"))
			if err != nil {
				return &exitError{code: 30, err: err}
			}
			for _, w := range written {
				fmt.Printf("  %s+%s %s\n", ux.Green, ux.Reset, w)
			}
			return nil
		},
	}
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:      "doctor",
		Usage:     "Print a deterministic diagnostic bundle for a ticket",
		ArgsUsage: "[ticket]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			roots, err := workflowroot.RequireWorkflowRoot("")
			if err != nil {
				return &exitError{code: 30, err: err}
			}
			state := activestate.Read(roots.WorkflowRoot)
			ticket := cmd.Args().First()
			if ticket == "" {
				ticket = state.Ticket
			}
			report, err := doctor.Diagnose(roots.WorkflowRoot, ticket, state)
			if err != nil {
				return &exitError{code: 30, err: err}
			}
			fmt.Print(report)
			return nil
		},
	}
}
