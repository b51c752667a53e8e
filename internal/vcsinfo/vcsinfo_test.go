package vcsinfo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestBranchReturnsCurrentBranch(t *testing.T) {
	dir := initRepo(t)
	assert.Equal(t, "main", Branch(context.Background(), dir))
}

func TestBranchReturnsEmptyForNonRepo(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", Branch(context.Background(), dir))
}

func TestChangedFilesReflectsWorkingTreeDiff(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("two\n"), 0o644))

	files := ChangedFiles(context.Background(), dir)
	assert.Equal(t, []string{"a.txt"}, files)
}

func TestChangedFilesEmptyWhenClean(t *testing.T) {
	dir := initRepo(t)
	files := ChangedFiles(context.Background(), dir)
	assert.Equal(t, []string{}, files)
}
