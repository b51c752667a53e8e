package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aidd-dev/aidd-orc/internal/runtimeconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResearch(t *testing.T, root, ticket, body string) string {
	t.Helper()
	path := filepath.Join(root, "docs", "research", ticket+".md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validResearchDoc = `# Research

Status: READY

- ` + "`internal/foo/bar.go`" + ` covers the relevant behavior.
`

func TestResearchCheckMissingBaselineSkips(t *testing.T) {
	root := t.TempDir()
	result := ResearchCheck(context.Background(), Params{WorkflowRoot: root, Ticket: "TCK-1"})
	assert.True(t, result.OK())
	assert.True(t, result.Skipped)
}

func TestResearchCheckPassesOnWellFormedDoc(t *testing.T) {
	root := t.TempDir()
	writeResearch(t, root, "TCK-1", validResearchDoc)

	result := ResearchCheck(context.Background(), Params{
		WorkflowRoot: root, Ticket: "TCK-1",
		Config: runtimeconfig.GatesConfig{ResearchFreshnessDays: 14},
	})
	assert.True(t, result.OK())
	assert.False(t, result.Skipped)
}

func TestResearchCheckNoPathReferencesBlocks(t *testing.T) {
	root := t.TempDir()
	writeResearch(t, root, "TCK-1", "# Research\n\nStatus: READY\n\nNo paths referenced.\n")

	result := ResearchCheck(context.Background(), Params{WorkflowRoot: root, Ticket: "TCK-1"})
	assert.False(t, result.OK())
}

func TestResearchCheckStaleDocBlocks(t *testing.T) {
	root := t.TempDir()
	path := writeResearch(t, root, "TCK-1", validResearchDoc)
	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	result := ResearchCheck(context.Background(), Params{
		WorkflowRoot: root, Ticket: "TCK-1",
		Config: runtimeconfig.GatesConfig{ResearchFreshnessDays: 14},
	})
	assert.False(t, result.OK())
}
