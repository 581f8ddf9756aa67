// handlers_analyze.go - Document submission handler
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/findoc-analyzer/backend/internal/dispatch"
	"github.com/findoc-analyzer/backend/internal/models"
	"github.com/findoc-analyzer/backend/internal/storage"
)

// submissionResponse is the JSON shape of POST /analyze. Result is only
// present for jobs run inline.
type submissionResponse struct {
	Status        string  `json:"status"`
	JobID         string  `json:"job_id"`
	Query         string  `json:"query"`
	FileProcessed string  `json:"file_processed"`
	Result        *string `json:"result,omitempty"`
}

func newSubmissionResponse(sub models.Submission, fileName string) submissionResponse {
	resp := submissionResponse{
		Status:        string(sub.Kind),
		JobID:         sub.JobID,
		Query:         sub.Query,
		FileProcessed: fileName,
	}
	switch sub.Kind {
	case models.SubmissionCompleted:
		resp.Result = &sub.Result
	case models.SubmissionFailed:
		resp.Result = &sub.Error
	}
	return resp
}

// AnalyzeHandlerImpl implements the AnalyzeHandler interface
type AnalyzeHandlerImpl struct {
	files      storage.Store
	dispatcher Submitter
	logger     *slog.Logger
}

// NewAnalyzeHandler creates a new analyze handler instance
func NewAnalyzeHandler(files storage.Store, dispatcher Submitter, logger *slog.Logger) AnalyzeHandler {
	return &AnalyzeHandlerImpl{
		files:      files,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleAnalyze accepts a multipart upload (file, optional query) and
// dispatches it. Inline failures still answer 200 with status "failed".
func (h *AnalyzeHandlerImpl) HandleAnalyze(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file", "a document is required")
	}
	if file.Size == 0 {
		return NewValidationError("file", "uploaded file is empty")
	}

	src, err := file.Open()
	if err != nil {
		return NewBadRequestError("failed to read uploaded file", err)
	}
	defer src.Close()

	info, err := h.files.Save(file.Filename, src)
	if errors.Is(err, storage.ErrEmptyFile) {
		return NewValidationError("file", "uploaded file is empty")
	}
	if err != nil {
		return NewInternalError("Error saving financial document", err)
	}

	ctx := c.Request().Context()
	sub, err := h.dispatcher.Submit(ctx, dispatch.SubmitRequest{
		Query:         c.FormValue("query"),
		FileReference: info.Path,
		FileName:      file.Filename,
	})
	if err != nil {
		if rerr := h.files.Remove(info.Path); rerr != nil {
			h.logger.WarnContext(ctx, "failed to remove upload", "path", info.Path, "error", rerr)
		}
		return NewInternalError("Error queuing financial document: "+err.Error(), err)
	}

	return c.JSON(http.StatusOK, newSubmissionResponse(sub, file.Filename))
}
