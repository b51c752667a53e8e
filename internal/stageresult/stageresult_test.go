package stageresult

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenLoadExactScope(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	result := &StageResult{
		Ticket: "TCK-1", Stage: "implement", ScopeKey: "i1", Result: ResultDone,
		UpdatedAt: now.UTC().Format(time.RFC3339),
	}
	require.NoError(t, Write(root, result))

	outcome, err := Load(root, "TCK-1", "i1", "implement", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, outcome.ScopeMismatchWarn)
	assert.Equal(t, ResultDone, outcome.Result.Result)
}

func TestLoadFallsBackToGlobOnScopeMismatch(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	result := &StageResult{
		Ticket: "TCK-1", Stage: "implement", ScopeKey: "actual-scope", Result: ResultContinue,
		UpdatedAt: now.UTC().Format(time.RFC3339),
	}
	require.NoError(t, Write(root, result))

	outcome, err := Load(root, "TCK-1", "expected-scope", "implement", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, outcome.ScopeMismatchWarn)
	assert.Equal(t, "actual-scope", outcome.ObservedScope)
}

func TestLoadNoCandidatesErrors(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	_, err := Load(root, "TCK-1", "i1", "implement", now, now)
	assert.Error(t, err)
}

func TestNormalizeHardBlockReasonCodeForcesBlocked(t *testing.T) {
	result := &StageResult{Result: ResultContinue, ReasonCode: "user_approval_required"}
	normalize(result)
	assert.Equal(t, ResultBlocked, result.Result)
}

func TestNormalizeWarnReasonCodeDowngradesBlockedToContinue(t *testing.T) {
	result := &StageResult{Result: ResultBlocked, ReasonCode: "out_of_scope_warn"}
	normalize(result)
	assert.Equal(t, ResultContinue, result.Result)
}

func TestNormalizeLeavesOtherResultsUntouched(t *testing.T) {
	result := &StageResult{Result: ResultDone, ReasonCode: "out_of_scope_warn"}
	normalize(result)
	assert.Equal(t, ResultDone, result.Result)
}

func TestForcedInvalidPayload(t *testing.T) {
	now := time.Now()
	result := ForcedInvalidPayload("TCK-1", "review", "i1", now)
	assert.Equal(t, ResultBlocked, result.Result)
	assert.Equal(t, InvalidPayloadReasonCode, result.ReasonCode)
}
