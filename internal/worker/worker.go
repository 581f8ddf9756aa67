// Package worker consumes queued jobs and executes them.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/findoc-analyzer/backend/internal/jobstore"
	"github.com/findoc-analyzer/backend/internal/processor"
	"github.com/findoc-analyzer/backend/internal/queue"
)

// Executor runs a job to its terminal state.
type Executor interface {
	Process(ctx context.Context, task processor.Task) (processor.Outcome, error)
}

// Worker pulls messages from a Consumer with a fixed number of slots.
type Worker struct {
	consumer    queue.Consumer
	exec        Executor
	logger      *slog.Logger
	concurrency int
	backoff     time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithConcurrency sets how many jobs run at once.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithReceiveBackoff sets the pause after a failed Receive.
func WithReceiveBackoff(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.backoff = d
		}
	}
}

// New creates a Worker with one slot and a one second receive backoff.
func New(consumer queue.Consumer, exec Executor, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		consumer:    consumer,
		exec:        exec,
		logger:      logger.With("component", "worker"),
		concurrency: 1,
		backoff:     time.Second,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run blocks until ctx is cancelled or the consumer is closed, then waits
// for in-flight jobs to finish.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i + 1)
	}
	w.logger.Info("worker started", "concurrency", w.concurrency)
	wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, slot int) {
	logger := w.logger.With("slot", slot)
	for {
		d, err := w.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Error("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}
		w.handle(ctx, logger, d)
	}
}

func (w *Worker) handle(ctx context.Context, logger *slog.Logger, d *queue.Delivery) {
	// acknowledgements must go through even while shutting down
	ackCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job handler panicked", "panic", r)
			ack(ackCtx, logger, d)
		}
	}()

	msg, err := queue.Decode(d.Body)
	if err != nil {
		logger.Warn("dropping undecodable message", "error", err, "bytes", len(d.Body))
		ack(ackCtx, logger, d)
		return
	}
	logger = logger.With("job_id", msg.JobID)
	logger.Info("job received", "wait_ms", time.Since(msg.EnqueuedAt).Milliseconds())

	outcome, err := w.exec.Process(ctx, processor.Task{
		JobID:         msg.JobID,
		Query:         msg.Query,
		FileReference: msg.FileReference,
	})
	switch {
	case err == nil:
		logger.Info("job done", "status", outcome.Status)
		ack(ackCtx, logger, d)
	case errors.Is(err, jobstore.ErrNotFound):
		logger.Warn("job record missing, skipping")
		ack(ackCtx, logger, d)
	default:
		logger.Error("job result not recorded, requeueing", "error", err)
		if err := d.Nack(ackCtx); err != nil {
			logger.Error("nack failed", "error", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.backoff):
		}
	}
}

func ack(ctx context.Context, logger *slog.Logger, d *queue.Delivery) {
	if err := d.Ack(ctx); err != nil {
		logger.Error("ack failed", "error", err)
	}
}
