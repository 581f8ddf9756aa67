package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, DefaultQuery, NormalizeQuery("", ""))
	assert.Equal(t, DefaultQuery, NormalizeQuery("  \n\t", " "))
	assert.Equal(t, "Summarize risks", NormalizeQuery("", "Summarize risks"))
	assert.Equal(t, "What is the margin?", NormalizeQuery("  What is the margin? ", "x"))
}

func TestJobStatus(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusPending.Valid())
	assert.False(t, JobStatus("running").Valid())
}

func TestNewJob(t *testing.T) {
	now := time.Now()
	job := NewJob("id", "q", "f.pdf", now)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Nil(t, job.Result)
	assert.Equal(t, now, job.CreatedAt)
	assert.Equal(t, now, job.UpdatedAt)
}
