package models

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DefaultQuery is used when a submission carries no query.
const DefaultQuery = "Analyze this financial document for investment insights"

// NormalizeQuery trims q and substitutes fallback, or DefaultQuery when
// fallback is blank too, when nothing is left.
func NormalizeQuery(q, fallback string) string {
	if q = strings.TrimSpace(q); q != "" {
		return q
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return DefaultQuery
}

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s.Terminal()
}

// Job is the persisted record of one analysis request.
type Job struct {
	ID            string    `json:"job_id"`
	Query         string    `json:"query"`
	FileReference string    `json:"file_path"`
	Status        JobStatus `json:"status"`
	Result        *string   `json:"result"` // nil until terminal
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewJob creates a Job in pending status.
func NewJob(id, query, fileReference string, now time.Time) *Job {
	return &Job{
		ID:            id,
		Query:         query,
		FileReference: fileReference,
		Status:        JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
