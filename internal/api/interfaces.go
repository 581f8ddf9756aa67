// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/findoc-analyzer/backend/internal/dispatch"
	"github.com/findoc-analyzer/backend/internal/models"
)

// AnalyzeHandler handles document submissions
type AnalyzeHandler interface {
	HandleAnalyze(c echo.Context) error
}

// StatusHandler handles job status lookups
type StatusHandler interface {
	HandleStatus(c echo.Context) error
	HandleStats(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleRoot(c echo.Context) error
	HandleHealth(c echo.Context) error
}

// Submitter hands uploaded documents to the execution path.
// *dispatch.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, req dispatch.SubmitRequest) (models.Submission, error)
	Mode() dispatch.Mode
}

// JobReader reads job records. jobstore.Store implements it.
type JobReader interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Stats(ctx context.Context) (map[models.JobStatus]int, error)
}
