package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aidd-dev/aidd-orc/internal/runtimeconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePRD(t *testing.T, root, ticket, body string) {
	t.Helper()
	path := filepath.Join(root, "docs", "prd", ticket+".prd.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

const validAnalystSection = `## Analyst Dialogue

Question 1: What is the scope?
Answer 1: Everything in module X.

Question 2: What is out of scope?
Answer 2: Legacy module Y.

Question 3: Who approves?
Answer 3: The tech lead.

Status: READY

See docs/research/TCK-1.md for background.
`

func TestAnalystCheckPassesOnWellFormedPRD(t *testing.T) {
	root := t.TempDir()
	writePRD(t, root, "TCK-1", validAnalystSection)

	result := AnalystCheck(context.Background(), Params{
		WorkflowRoot: root, Ticket: "TCK-1",
		Config: runtimeconfig.GatesConfig{AnalystMinQuestions: 3},
	})
	assert.True(t, result.OK())
}

func TestAnalystCheckMissingPRDBlocks(t *testing.T) {
	root := t.TempDir()
	result := AnalystCheck(context.Background(), Params{WorkflowRoot: root, Ticket: "TCK-1"})
	assert.False(t, result.OK())
}

func TestAnalystCheckBelowMinimumQuestionsBlocks(t *testing.T) {
	root := t.TempDir()
	writePRD(t, root, "TCK-1", validAnalystSection)

	result := AnalystCheck(context.Background(), Params{
		WorkflowRoot: root, Ticket: "TCK-1",
		Config: runtimeconfig.GatesConfig{AnalystMinQuestions: 5},
	})
	assert.False(t, result.OK())
}

func TestAnalystCheckMissingResearchCrossReferenceBlocks(t *testing.T) {
	root := t.TempDir()
	writePRD(t, root, "TCK-1", `## Analyst Dialogue

Question 1: What is the scope?
Answer 1: Everything.

Status: READY
`)

	result := AnalystCheck(context.Background(), Params{
		WorkflowRoot: root, Ticket: "TCK-1",
		Config: runtimeconfig.GatesConfig{AnalystMinQuestions: 1},
	})
	assert.False(t, result.OK())
}

func TestAnalystCheckReadyWithOpenQuestionsBlocks(t *testing.T) {
	root := t.TempDir()
	writePRD(t, root, "TCK-1", validAnalystSection+"\n## Open Questions\n\n- What about edge case Z?\n")

	result := AnalystCheck(context.Background(), Params{
		WorkflowRoot: root, Ticket: "TCK-1",
		Config: runtimeconfig.GatesConfig{AnalystMinQuestions: 3},
	})
	assert.False(t, result.OK())
}
