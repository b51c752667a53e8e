package looppack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `---
schema: aidd.loop_pack.v1
updated_at: "2026-01-02T03:04:05Z"
ticket: TCK-1
work_item_id: I1
work_item_key: iteration_id=I1
scope_key: iteration_id_I1
boundaries:
  allowed_paths:
    - internal/foo/**
  forbidden_paths:
    - internal/bar/**
commands_required:
  - go test ./...
tests_required:
  - internal/foo
evidence_policy: required
---
# Work item I1

Body text.
`

func TestParseExtractsFrontMatterAndBody(t *testing.T) {
	pack, err := Parse(sampleDoc)
	require.NoError(t, err)
	assert.Equal(t, Schema, pack.Schema)
	assert.Equal(t, "TCK-1", pack.Ticket)
	assert.Equal(t, []string{"internal/foo/**"}, pack.Boundaries.AllowedPaths)
	assert.Equal(t, []string{"internal/bar/**"}, pack.Boundaries.ForbiddenPaths)
	assert.Contains(t, pack.Body, "Work item I1")
}

func TestParseMissingDelimiterErrors(t *testing.T) {
	_, err := Parse("no front matter here")
	assert.Error(t, err)
}

func TestParseUnterminatedFrontMatterErrors(t *testing.T) {
	_, err := Parse("---\nschema: x\n")
	assert.Error(t, err)
}

func TestRenderRoundTripsThroughParse(t *testing.T) {
	pack, err := Parse(sampleDoc)
	require.NoError(t, err)

	rendered, err := Render(pack)
	require.NoError(t, err)

	reparsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.Equal(t, pack.Ticket, reparsed.Ticket)
	assert.Equal(t, pack.Boundaries, reparsed.Boundaries)
}
