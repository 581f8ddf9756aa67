package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/findoc-analyzer/backend/internal/log"
	"github.com/findoc-analyzer/backend/internal/queue"
	"github.com/findoc-analyzer/backend/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "consume queued jobs until interrupted",
	RunE:  doWorker,
}

func doWorker(cmd *cobra.Command, _ []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("analyzer",
		slog.String("cmd", "worker"),
		slog.Int("pid", os.Getpid()),
	))

	broker, available := queue.Probe(ctx, queueOptions(cfg), logger)
	if !available {
		return errNoBackend
	}
	defer broker.Close()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	w := worker.New(broker, a.proc, logger, worker.WithConcurrency(cfg.Worker.Concurrency))
	return w.Run(ctx)
}
