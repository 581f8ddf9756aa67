// Package jobstore persists analysis job records. It is the single source of
// truth for job status shared by the API process and every worker.
package jobstore

import (
	"context"
	"errors"

	"github.com/findoc-analyzer/backend/internal/models"
)

var (
	// ErrNotFound is returned for unknown or malformed job ids.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when an update would leave a job non-terminal.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store is the job store contract.
type Store interface {
	// Create inserts a pending job. The record is durable once Create returns.
	Create(ctx context.Context, query, fileReference string) (*models.Job, error)
	// Update overwrites status and result of an existing job. Only terminal
	// statuses are accepted; repeating an update is harmless.
	Update(ctx context.Context, id string, status models.JobStatus, result string) error
	Get(ctx context.Context, id string) (*models.Job, error)
	Stats(ctx context.Context) (map[models.JobStatus]int, error)
	Close() error
}

// CheckUpdate validates the arguments of an Update call. Implementations
// share it so the status invariants hold for every engine.
func CheckUpdate(status models.JobStatus) error {
	if !status.Terminal() {
		return ErrInvalidTransition
	}
	return nil
}
