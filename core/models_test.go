package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummary_Counts(t *testing.T) {
	s := NewSummary(false, []Outcome{
		{SourceID: "a", Status: OutcomeInserted},
		{SourceID: "b", Status: OutcomeInserted},
		{SourceID: "c", Status: OutcomeSkippedUnchanged},
		{SourceID: "d", Status: OutcomeFailed, Reason: "boom", Retryable: true},
	}, 2)

	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 2, s.Writes)
	assert.Equal(t, 2, s.Count(OutcomeInserted))
	assert.Equal(t, 0, s.Count(OutcomeUpdated))
	assert.Equal(t, map[OutcomeStatus]int{
		OutcomeInserted:         2,
		OutcomeSkippedUnchanged: 1,
		OutcomeFailed:           1,
	}, s.Counts())
	assert.True(t, s.HasFailures())
	assert.Len(t, s.Failed(), 1)
}

func TestSummary_String(t *testing.T) {
	s := NewSummary(true, []Outcome{
		{SourceID: "a", Status: OutcomeSkippedDryRun},
		{SourceID: "b", Status: OutcomeFailed, Reason: "timeout", Retryable: true},
	}, 0)

	out := s.String()
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "skipped-dry-run:")
	assert.Contains(t, out, "b: timeout (retryable)")
	assert.True(t, strings.HasPrefix(out, "Ingest summary"))
}

func TestSummary_NoFailures(t *testing.T) {
	s := NewSummary(false, []Outcome{{SourceID: "a", Status: OutcomeUpdated}}, 1)
	assert.False(t, s.HasFailures())
	assert.Empty(t, s.Failed())
}
