package loop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aidd-dev/aidd-orc/internal/activestate"
	"github.com/aidd-dev/aidd-orc/internal/stageresult"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initWorkspaceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	return dir
}

func TestFirstQualifyingHandoffFindsMarker(t *testing.T) {
	workspace := initWorkspaceDir(t)
	root := filepath.Join(workspace, "aidd")
	writeLoopTasklist(t, root, "TCK-1", "some text <!-- handoff:qa I4 --> more text\n")

	id, found, err := firstQualifyingHandoff(root, "TCK-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "I4", id)
}

func TestFirstQualifyingHandoffNoTasklistReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	_, found, err := firstQualifyingHandoff(root, "TCK-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApplyQARepairSelectionManualUsesExplicitSelection(t *testing.T) {
	workspace := initWorkspaceDir(t)
	opts := Options{Ticket: "TCK-1", Cwd: workspace, FromQA: FromQAManual, SelectQAHandoff: "I4"}

	err := applyQARepairSelection(opts)
	require.NoError(t, err)

	state := activestate.Read(filepath.Join(workspace, "aidd"))
	assert.Equal(t, "iteration_id=I4", state.WorkItem)
	assert.Equal(t, "implement", state.Stage)
}

func TestApplyQARepairSelectionAutoPicksFirstHandoff(t *testing.T) {
	workspace := initWorkspaceDir(t)
	root := filepath.Join(workspace, "aidd")
	writeLoopTasklist(t, root, "TCK-1", "<!-- handoff:qa I7 -->\n")

	opts := Options{Ticket: "TCK-1", Cwd: workspace, FromQA: FromQAAuto}
	err := applyQARepairSelection(opts)
	require.NoError(t, err)

	state := activestate.Read(root)
	assert.Equal(t, "iteration_id=I7", state.WorkItem)
}

func TestApplyQARepairSelectionAmbiguousSelectQaHandoffErrors(t *testing.T) {
	workspace := initWorkspaceDir(t)
	root := filepath.Join(workspace, "aidd")
	writeLoopTasklist(t, root, "TCK-1", "<!-- handoff:qa I7 -->\n")

	opts := Options{Ticket: "TCK-1", Cwd: workspace, FromQA: FromQAAuto, SelectQAHandoff: "I9"}
	err := applyQARepairSelection(opts)
	assert.ErrorContains(t, err, "qa_repair_ambiguous")
}

func TestApplyQARepairSelectionAmbiguousExplicitWorkItemKeyErrors(t *testing.T) {
	workspace := initWorkspaceDir(t)
	root := filepath.Join(workspace, "aidd")
	writeLoopTasklist(t, root, "TCK-1", "<!-- handoff:qa I7 -->\n")

	opts := Options{Ticket: "TCK-1", Cwd: workspace, FromQA: FromQAAuto, ExplicitWorkItemKey: "I9"}
	err := applyQARepairSelection(opts)
	assert.ErrorContains(t, err, "qa_repair_ambiguous")
}

func TestApplyQARepairSelectionNoCandidateErrors(t *testing.T) {
	workspace := initWorkspaceDir(t)
	opts := Options{Ticket: "TCK-1", Cwd: workspace, FromQA: FromQAAuto}
	err := applyQARepairSelection(opts)
	assert.ErrorContains(t, err, "no qualifying QA handoff")
}

func TestExitCodeForResultMapsAllThreeStates(t *testing.T) {
	assert.Equal(t, ExitDone, exitCodeForResult(&stageresult.StageResult{Result: stageresult.ResultDone}))
	assert.Equal(t, ExitBlocked, exitCodeForResult(&stageresult.StageResult{Result: stageresult.ResultBlocked}))
	assert.Equal(t, ExitContinue, exitCodeForResult(&stageresult.StageResult{Result: stageresult.ResultContinue}))
}

func TestHandleDoneNonReviewStageIsNoop(t *testing.T) {
	workspace := initWorkspaceDir(t)
	cont, err := handleDone(Options{Ticket: "TCK-1", Cwd: workspace}, &StepOutcome{Stage: "implement"})
	require.NoError(t, err)
	assert.False(t, cont)
}

func TestHandleDoneAdvancesToNextWorkItem(t *testing.T) {
	workspace := initWorkspaceDir(t)
	root := filepath.Join(workspace, "aidd")
	writeLoopTasklist(t, root, "TCK-1", `<!-- AIDD:NEXT_3 -->
- [ ] iteration_id=I2 implement second thing
<!-- AIDD:ITERATIONS_FULL -->
- [x] iteration_id=I1 implement first thing
- [ ] iteration_id=I2 implement second thing
<!-- AIDD:QA_TRACEABILITY -->
`)

	cont, err := handleDone(Options{Ticket: "TCK-1", Cwd: workspace}, &StepOutcome{Stage: "review", ScopeKey: "iteration_id_I1"})
	require.NoError(t, err)
	assert.True(t, cont)

	state := activestate.Read(root)
	assert.Equal(t, "iteration_id=I2", state.WorkItem)
	assert.Equal(t, "implement", state.Stage)
}

func TestHandleDoneNoMoreWorkClearsActiveModeAndStops(t *testing.T) {
	workspace := initWorkspaceDir(t)
	root := filepath.Join(workspace, "aidd")
	activeModePath := filepath.Join(root, "docs", ".active_mode")
	require.NoError(t, os.MkdirAll(filepath.Dir(activeModePath), 0o755))
	require.NoError(t, os.WriteFile(activeModePath, []byte("loop"), 0o644))
	writeLoopTasklist(t, root, "TCK-1", `<!-- AIDD:NEXT_3 -->
<!-- AIDD:ITERATIONS_FULL -->
- [x] iteration_id=I1 implement first thing
<!-- AIDD:QA_TRACEABILITY -->
`)

	cont, err := handleDone(Options{Ticket: "TCK-1", Cwd: workspace}, &StepOutcome{Stage: "review", ScopeKey: "iteration_id_I1"})
	require.NoError(t, err)
	assert.False(t, cont)
	_, statErr := os.Stat(activeModePath)
	assert.True(t, os.IsNotExist(statErr))
}
