package gate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidd-dev/aidd-orc/internal/command"
)

// qaEntrypoint is the skill entrypoint QAGate forwards to. It mirrors the
// Stage Dispatcher's own dispatch table entry for "qa" — this is the one
// gate that executes code outside the engine.
const qaEntrypoint = "skills/qa/runtime/qa_gate_check.py"

// QAGate forwards to the QA skill runtime as a subprocess; it is the only
// gate in the engine that executes code rather than inspecting files
// directly.
func QAGate(ctx context.Context, p Params) Result {
	scriptPath := filepath.Join(p.PluginRoot, qaEntrypoint)
	if _, err := os.Stat(scriptPath); err != nil {
		return skip("qa", "qa gate entrypoint not installed")
	}

	env := command.BuildRuntimeEnv(p.PluginRoot, p.Profile, nil, nil)
	result, err := command.RunPython(ctx, scriptPath, []string{"--ticket", p.Ticket}, command.Options{
		Cwd:            p.WorkspaceRoot,
		Env:            env,
		TimeoutSec:     p.Profile.TimeoutSec,
		MaxStdoutBytes: p.Profile.MaxStdoutBytes,
		MaxStderrBytes: p.Profile.MaxStderrBytes,
	})
	if err != nil {
		return block("qa", err.Error())
	}

	switch result.ReturnCode {
	case 0:
		return ok("qa", strings.TrimSpace(result.Stdout))
	default:
		summary := strings.TrimSpace(result.Stderr)
		if summary == "" {
			summary = strings.TrimSpace(result.Stdout)
		}
		return block("qa", summary)
	}
}
