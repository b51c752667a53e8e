package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenAbsent(t *testing.T) {
	root := t.TempDir()
	gates, contextGC, conventions, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, DefaultGatesConfig(), gates)
	assert.Equal(t, DefaultContextGCConfig(), contextGC)
	assert.Equal(t, ConventionsConfig{}, conventions)
}

func TestLoadOverridesFromDisk(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "gates.json"),
		[]byte(`{"analyst_min_questions": 5, "plan_review_status": "APPROVED"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "conventions.json"),
		[]byte(`{"docs_subdir": "documents"}`), 0o644))

	gates, _, conventions, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 5, gates.AnalystMinQuestions)
	assert.Equal(t, "APPROVED", gates.PlanReviewStatus)
	assert.Equal(t, "documents", conventions.DocsSubdir)
}

func TestLoadMalformedJSONErrors(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "gates.json"), []byte(`{not json`), 0o644))

	_, _, _, err := Load(root)
	assert.Error(t, err)
}
