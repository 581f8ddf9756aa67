package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/findoc-analyzer/backend/internal/analysis"
	"github.com/findoc-analyzer/backend/internal/config"
	"github.com/findoc-analyzer/backend/internal/jobstore"
	"github.com/findoc-analyzer/backend/internal/processor"
	"github.com/findoc-analyzer/backend/internal/queue"
	"github.com/findoc-analyzer/backend/internal/storage"
)

// app holds the components shared by the serve and worker commands.
type app struct {
	store jobstore.Store
	files *storage.LocalStore
	proc  *processor.Processor
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	files, err := storage.NewLocalStore(cfg.Storage.UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("initializing upload storage: %w", err)
	}

	store, err := jobstore.Open(ctx, jobstore.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, logger)
	if err != nil {
		return nil, err
	}

	analyzer := analysis.NewDocumentAnalyzer(analysis.Config{
		Pdftotext:  cfg.Analysis.PdftotextPath,
		MaxExcerpt: cfg.Analysis.MaxExcerpt,
	}, nil, logger)

	proc, err := processor.New(processor.Options{
		Store:       store,
		Analyzer:    analyzer,
		Files:       files,
		Logger:      logger,
		Timeout:     cfg.Analysis.Timeout,
		KeepUploads: cfg.Storage.KeepUploads,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{store: store, files: files, proc: proc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing job store: %v\n", err)
	}
}

// queueOptions maps the config onto the broker options. A job holds its
// message for at most two analysis timeouts before NATS redelivers it.
func queueOptions(cfg *config.Config) queue.Options {
	return queue.Options{
		Backend:  cfg.Queue.Backend,
		URL:      cfg.Queue.URL,
		Name:     cfg.Queue.Name,
		Timeout:  cfg.Queue.ProbeTimeout,
		Prefetch: cfg.Worker.Concurrency,
		AckWait:  2 * cfg.Analysis.Timeout,
	}
}

var errNoBackend = errors.New("queue backend unavailable: the worker has nothing to consume")
