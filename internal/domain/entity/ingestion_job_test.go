package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionJob_Lifecycle(t *testing.T) {
	job := NewIngestionJob(SourceTypeLink, "https://example.com/a.md", 3)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.AttemptCount)

	require.NoError(t, job.StartAttempt(1))
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.True(t, job.CanRetry())

	require.NoError(t, job.StartAttempt(2))
	require.NoError(t, job.Succeed(IngestSummary{Docs: 1, Chunks: 4, VectorCount: 4}, 1500*time.Millisecond))
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 2, job.AttemptCount)
	require.NotNil(t, job.LatencyMs)
	assert.InDelta(t, 1500.0, *job.LatencyMs, 0.001)
	assert.False(t, job.CanRetry())
}

func TestIngestionJob_TerminalStatesAreFinal(t *testing.T) {
	job := NewIngestionJob(SourceTypeUpload, "notes.md", 1)
	require.NoError(t, job.StartAttempt(1))
	require.NoError(t, job.Fail("boom", time.Millisecond))

	assert.Error(t, job.StartAttempt(1))
	assert.Error(t, job.Succeed(IngestSummary{}, 0))
	assert.Error(t, job.Fail("again", 0))
	assert.Equal(t, JobStatusError, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "boom", *job.Error)
}

func TestIngestionJob_AttemptBounds(t *testing.T) {
	job := NewIngestionJob(SourceTypeLink, "https://example.com", 0)
	assert.Equal(t, 1, job.MaxAttempts)
	assert.Error(t, job.StartAttempt(2))
	assert.Error(t, job.StartAttempt(0))
}
