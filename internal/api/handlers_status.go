// handlers_status.go - Job status handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/findoc-analyzer/backend/internal/jobstore"
	"github.com/findoc-analyzer/backend/internal/models"
)

type statusResponse struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Result *string          `json:"result"`
}

type statsResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// StatusHandlerImpl implements the StatusHandler interface
type StatusHandlerImpl struct {
	jobs JobReader
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(jobs JobReader) StatusHandler {
	return &StatusHandlerImpl{jobs: jobs}
}

// HandleStatus returns the stored state of one job
func (h *StatusHandlerImpl) HandleStatus(c echo.Context) error {
	job, err := h.jobs.Get(c.Request().Context(), c.Param("job_id"))
	if errors.Is(err, jobstore.ErrNotFound) {
		return NewNotFoundError("Job not found")
	}
	if err != nil {
		return NewInternalError("failed to read job", err)
	}

	return c.JSON(http.StatusOK, statusResponse{
		JobID:  job.ID,
		Status: job.Status,
		Result: job.Result,
	})
}

// HandleStats returns job counts per status
func (h *StatusHandlerImpl) HandleStats(c echo.Context) error {
	stats, err := h.jobs.Stats(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to count jobs", err)
	}

	resp := statsResponse{
		Pending:   stats[models.JobStatusPending],
		Completed: stats[models.JobStatusCompleted],
		Failed:    stats[models.JobStatusFailed],
	}
	resp.Total = resp.Pending + resp.Completed + resp.Failed
	return c.JSON(http.StatusOK, resp)
}
