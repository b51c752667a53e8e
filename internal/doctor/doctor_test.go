package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidd-dev/aidd-orc/internal/activestate"
)

func TestDiagnoseRequiresTicket(t *testing.T) {
	_, err := Diagnose(t.TempDir(), "", activestate.State{})
	assert.Error(t, err)
}

func TestDiagnoseRendersAvailableContext(t *testing.T) {
	root := t.TempDir()
	scope := "iteration_id_I1"
	ticket := "TCK-1"

	reportsDir := filepath.Join(root, "reports", "loops", ticket, scope)
	require.NoError(t, os.MkdirAll(reportsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reportsDir, "stage.implement.result.json"), []byte(`{"result":"done"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "reports", "loops", ticket, "loop.run.log"), []byte("line one\nline two\n"), 0o644))

	tasklistDir := filepath.Join(root, "docs", "tasklist")
	require.NoError(t, os.MkdirAll(tasklistDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tasklistDir, ticket+".md"), []byte("<!-- handoff:qa iteration_id=I1 -->\n"), 0o644))

	state := activestate.State{Ticket: ticket, Stage: "implement", WorkItem: "iteration_id=I1"}

	report, err := Diagnose(root, ticket, state)
	require.NoError(t, err)
	assert.Contains(t, report, "stage=implement")
	assert.Contains(t, report, `"result":"done"`)
	assert.Contains(t, report, "line one")
	assert.Contains(t, report, "handoff:qa")
}
