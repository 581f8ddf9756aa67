// Package dispatch turns a submission into either an inline execution or a
// queued message. The mode is fixed when the Dispatcher is built.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/findoc-analyzer/backend/internal/jobstore"
	"github.com/findoc-analyzer/backend/internal/models"
	"github.com/findoc-analyzer/backend/internal/processor"
	"github.com/findoc-analyzer/backend/internal/queue"
)

// ErrDispatch wraps every failure to create, enqueue or record a job.
var ErrDispatch = errors.New("dispatch failed")

// Mode is the process wide execution mode.
type Mode string

const (
	ModeInline Mode = "inline"
	ModeQueued Mode = "queued"
)

// ModeFor maps the startup probe result to a Mode.
func ModeFor(queueAvailable bool) Mode {
	if queueAvailable {
		return ModeQueued
	}
	return ModeInline
}

// Executor runs a job to its terminal state. *processor.Processor implements it.
type Executor interface {
	Process(ctx context.Context, task processor.Task) (processor.Outcome, error)
}

// Options configures a Dispatcher.
type Options struct {
	Mode      Mode
	Store     jobstore.Store
	Processor Executor        // required in inline mode
	Publisher queue.Publisher // required in queued mode
	Logger    *slog.Logger

	// DefaultQuery replaces a blank query. Empty means models.DefaultQuery.
	DefaultQuery string
}

// SubmitRequest describes an uploaded document ready for analysis.
type SubmitRequest struct {
	Query         string
	FileReference string
	FileName      string
}

// Dispatcher creates jobs and routes them according to its mode.
type Dispatcher struct {
	mode      Mode
	store     jobstore.Store
	processor Executor
	publisher queue.Publisher
	logger    *slog.Logger
	query     string
	now       func() time.Time
}

// New creates a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, errors.New("dispatch: store is required")
	}
	switch opts.Mode {
	case ModeInline:
		if opts.Processor == nil {
			return nil, errors.New("dispatch: inline mode requires a processor")
		}
	case ModeQueued:
		if opts.Publisher == nil {
			return nil, errors.New("dispatch: queued mode requires a publisher")
		}
	default:
		return nil, fmt.Errorf("dispatch: unknown mode %q", opts.Mode)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		mode:      opts.Mode,
		store:     opts.Store,
		processor: opts.Processor,
		publisher: opts.Publisher,
		logger:    opts.Logger.With("component", "dispatcher", "mode", string(opts.Mode)),
		query:     opts.DefaultQuery,
		now:       time.Now,
	}, nil
}

// Mode returns the mode the dispatcher was built with.
func (d *Dispatcher) Mode() Mode { return d.mode }

// Submit creates a pending job and either executes it before returning
// (inline) or publishes it for a worker (queued). Errors wrap ErrDispatch.
//
// A publish failure leaves the job pending; it is not retried.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (models.Submission, error) {
	query := models.NormalizeQuery(req.Query, d.query)

	job, err := d.store.Create(ctx, query, req.FileReference)
	if err != nil {
		return models.Submission{}, fmt.Errorf("%w: creating job: %v", ErrDispatch, err)
	}
	logger := d.logger.With("job_id", job.ID)
	logger.Info("job created", "file_name", req.FileName)

	if d.mode == ModeQueued {
		msg := queue.Message{
			JobID:         job.ID,
			Query:         query,
			FileReference: req.FileReference,
			EnqueuedAt:    d.now().UTC(),
		}
		if err := d.publisher.Publish(ctx, msg); err != nil {
			logger.Error("failed to enqueue job", "error", err)
			return models.Submission{}, fmt.Errorf("%w: enqueueing job %s: %v", ErrDispatch, job.ID, err)
		}
		logger.Info("job queued")
		return models.Queued(job.ID, query), nil
	}

	outcome, err := d.processor.Process(ctx, processor.Task{
		JobID:         job.ID,
		Query:         query,
		FileReference: req.FileReference,
	})
	if err != nil {
		return models.Submission{}, fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	if outcome.Status == models.JobStatusCompleted {
		return models.Completed(job.ID, query, outcome.Result), nil
	}
	return models.Failed(job.ID, query, outcome.Result), nil
}
