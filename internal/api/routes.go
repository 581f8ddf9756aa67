// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/findoc-analyzer/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Files      storage.Store
	Dispatcher Submitter
	Jobs       JobReader
	Version    string
	Logger     *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Analyze AnalyzeHandler
	Status  StatusHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Dispatcher.Mode()),
		Analyze: NewAnalyzeHandler(deps.Files, deps.Dispatcher, deps.Logger),
		Status:  NewStatusHandler(deps.Jobs),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/", handlers.Health.HandleRoot)
	e.GET("/healthz", handlers.Health.HandleHealth)

	e.POST("/analyze", handlers.Analyze.HandleAnalyze)
	e.GET("/status/:job_id", handlers.Status.HandleStatus)
	e.GET("/stats", handlers.Status.HandleStats)
}

// MiddlewareConfig holds settings for SetupMiddleware
type MiddlewareConfig struct {
	BodyLimit            string
	EnableRequestLogging bool
	Logger               *slog.Logger
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = NewErrorHandler(cfg.Logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/status/") || path == "/healthz"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				cfg.Logger.WarnContext(c.Request().Context(), "request", append(attrs, "error", v.Error)...)
				return nil
			}
			cfg.Logger.InfoContext(c.Request().Context(), "request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			cfg.Logger.Error("handler panicked", "error", err, "stack", string(stack))
			return err
		},
	}))

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
}
