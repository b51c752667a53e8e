// Package vcsinfo reads the current branch name and the set of changed
// files via short-lived "git" subprocess calls — the only version-control
// operations this engine performs, per spec.md's Non-goals ("no version
// control operations beyond reading branch name and changed-file lists").
package vcsinfo

import (
	"context"
	"os/exec"
	"strings"
)

// Branch returns the current branch name, or "" if it cannot be
// determined (not a git repository, detached HEAD edge cases, etc.).
func Branch(ctx context.Context, workspaceRoot string) string {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = workspaceRoot
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" {
		return ""
	}
	return branch
}

// ChangedFiles returns the files listed by "git diff --name-only HEAD"
// (tracked files whose working tree or index differs from HEAD), used by
// diff_boundary_check. Untracked files are not listed, and the result is
// nil when the git call fails.
func ChangedFiles(ctx context.Context, workspaceRoot string) []string {
	if files := diffAgainst(ctx, workspaceRoot, "HEAD"); files != nil {
		return files
	}
	return nil
}

func diffAgainst(ctx context.Context, workspaceRoot, ref string) []string {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", ref)
	cmd.Dir = workspaceRoot
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "\n")
}
