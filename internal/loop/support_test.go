package loop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLoopTasklist(t *testing.T, root, ticket, body string) {
	t.Helper()
	path := filepath.Join(root, "docs", "tasklist", ticket+".md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestSelectNextWorkItemPrefersNext3(t *testing.T) {
	root := t.TempDir()
	writeLoopTasklist(t, root, "TCK-1", `<!-- AIDD:NEXT_3 -->
- [ ] iteration_id=I2 implement second thing
<!-- AIDD:ITERATIONS_FULL -->
- [x] iteration_id=I1 implement first thing
- [ ] iteration_id=I2 implement second thing
<!-- AIDD:QA_TRACEABILITY -->
`)

	id, found, err := SelectNextWorkItem(root, "TCK-1", "iteration_id_I1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "I2", id)
}

func TestSelectNextWorkItemFallsBackToIterationsFull(t *testing.T) {
	root := t.TempDir()
	writeLoopTasklist(t, root, "TCK-1", `<!-- AIDD:NEXT_3 -->
<!-- AIDD:ITERATIONS_FULL -->
- [x] iteration_id=I1 implement first thing
- [ ] iteration_id=I2 implement second thing
<!-- AIDD:QA_TRACEABILITY -->
`)

	id, found, err := SelectNextWorkItem(root, "TCK-1", "iteration_id_I1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "I2", id)
}

func TestSelectNextWorkItemSkipsCurrentScope(t *testing.T) {
	root := t.TempDir()
	writeLoopTasklist(t, root, "TCK-1", `<!-- AIDD:NEXT_3 -->
<!-- AIDD:ITERATIONS_FULL -->
- [ ] iteration_id=I2 implement second thing
<!-- AIDD:QA_TRACEABILITY -->
`)

	_, found, err := SelectNextWorkItem(root, "TCK-1", "iteration_id_I2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSelectNextWorkItemNoTasklistReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	id, found, err := SelectNextWorkItem(root, "TCK-1", "")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "", id)
}

func TestSelectNextWorkItemAllDoneReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	writeLoopTasklist(t, root, "TCK-1", `<!-- AIDD:NEXT_3 -->
<!-- AIDD:ITERATIONS_FULL -->
- [x] iteration_id=I1 implement first thing
<!-- AIDD:QA_TRACEABILITY -->
`)

	_, found, err := SelectNextWorkItem(root, "TCK-1", "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolveScopeKeyUsesWorkItemOverTicket(t *testing.T) {
	assert.Equal(t, "iteration_id_I1", resolveScopeKey("iteration_id=I1", "TCK-1"))
	assert.Equal(t, "TCK-1", resolveScopeKey("", "TCK-1"))
}
