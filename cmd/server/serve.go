package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/findoc-analyzer/backend/internal/api"
	"github.com/findoc-analyzer/backend/internal/dispatch"
	"github.com/findoc-analyzer/backend/internal/log"
	"github.com/findoc-analyzer/backend/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API; jobs run inline unless a queue backend answers at startup",
	RunE:  doServe,
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("analyzer",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// decided once for the lifetime of the process
	broker, available := queue.Probe(ctx, queueOptions(cfg), logger)
	if available {
		defer broker.Close()
	}

	opts := dispatch.Options{
		Mode:         dispatch.ModeFor(available),
		Store:        a.store,
		Processor:    a.proc,
		Logger:       logger,
		DefaultQuery: cfg.Analysis.DefaultQuery,
	}
	if available {
		opts.Publisher = broker
	}
	dispatcher, err := dispatch.New(opts)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, api.MiddlewareConfig{
		BodyLimit:            cfg.Server.BodyLimit,
		EnableRequestLogging: cfg.Server.EnableRequestLogging,
		Logger:               logger,
	})
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Files:      a.files,
		Dispatcher: dispatcher,
		Jobs:       a.store,
		Version:    Version,
		Logger:     logger,
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()
	logger.InfoContext(ctx, "server listening",
		"addr", cfg.GetServerAddr(),
		"mode", dispatcher.Mode(),
		"version", Version,
		"store", cfg.Database.Driver,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "shutting down")
	// inline jobs finish inside their requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
