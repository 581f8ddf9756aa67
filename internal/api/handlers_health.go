// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/findoc-analyzer/backend/internal/dispatch"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	mode    dispatch.Mode
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, mode dispatch.Mode) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		mode:    mode,
	}
}

// HandleRoot answers the liveness probe at /
func (h *HealthHandlerImpl) HandleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Financial Document Analyzer API is running",
	})
}

// HandleHealth returns server health status and execution mode
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"mode":    h.mode,
		"version": h.version,
	})
}
