package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aidd-dev/aidd-orc/internal/looppack"
	"github.com/aidd-dev/aidd-orc/internal/vcsinfo"
)

// DiffBoundaryCheck reads the active loop pack's allowed_paths/
// forbidden_paths and compares them against the changed-file set. Skips
// when there is no active work item or no loop pack has been generated
// yet.
func DiffBoundaryCheck(ctx context.Context, p Params) Result {
	if result, skipped := filterByBranch("diff-boundary", p.Branch, p.Config.BranchAllow, p.Config.BranchSkip); skipped {
		return result
	}

	if p.WorkItemKey == "" {
		return skip("diff-boundary", "no active work item")
	}

	packPath := filepath.Join(p.WorkflowRoot, "reports", "loops", p.Ticket, p.ScopeKey+".loop.pack.md")
	if _, err := os.Stat(packPath); err != nil {
		return skip("diff-boundary", "no loop pack yet")
	}

	pack, err := looppack.Load(packPath)
	if err != nil {
		return block("diff-boundary", err.Error())
	}

	changed := vcsinfo.ChangedFiles(ctx, p.WorkspaceRoot)
	if len(changed) == 0 {
		return ok("diff-boundary", "no changed files to check")
	}

	var violations []string
	for _, file := range changed {
		if matchesAny(file, pack.Boundaries.ForbiddenPaths) {
			violations = append(violations, file+" is forbidden")
			continue
		}
		if len(pack.Boundaries.AllowedPaths) > 0 && !matchesAny(file, pack.Boundaries.AllowedPaths) {
			violations = append(violations, file+" is outside allowed paths")
		}
	}
	if len(violations) > 0 {
		return block("diff-boundary", fmt.Sprintf("%d boundary violations: %v", len(violations), violations))
	}

	return ok("diff-boundary", fmt.Sprintf("diff-boundary gate passed: %d files checked", len(changed)))
}
