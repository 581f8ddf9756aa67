// Package processor runs one analysis job to its terminal state. Both the
// inline dispatcher and the queue worker go through Process, so a job ends
// the same way whichever path executed it.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/findoc-analyzer/backend/internal/analysis"
	"github.com/findoc-analyzer/backend/internal/jobstore"
	"github.com/findoc-analyzer/backend/internal/models"
)

// Remover deletes an uploaded document once its job is finished.
type Remover interface {
	Remove(path string) error
}

// Task identifies the job to run.
type Task struct {
	JobID         string
	Query         string
	FileReference string
}

// Outcome is the terminal state recorded for a job.
type Outcome struct {
	Status models.JobStatus
	Result string
}

// Options configures a Processor.
type Options struct {
	Store       jobstore.Store
	Analyzer    analysis.Analyzer
	Files       Remover // optional
	Logger      *slog.Logger
	Timeout     time.Duration // 0 disables the deadline
	KeepUploads bool
}

// Processor executes analysis jobs.
type Processor struct {
	store       jobstore.Store
	analyzer    analysis.Analyzer
	files       Remover
	logger      *slog.Logger
	timeout     time.Duration
	keepUploads bool
	schema      *jsonschema.Schema
}

// New creates a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Store == nil {
		return nil, errors.New("processor: store is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("processor: analyzer is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	schema, err := compileReportSchema()
	if err != nil {
		return nil, err
	}
	return &Processor{
		store:       opts.Store,
		analyzer:    opts.Analyzer,
		files:       opts.Files,
		logger:      opts.Logger.With("component", "processor"),
		timeout:     opts.Timeout,
		keepUploads: opts.KeepUploads,
		schema:      schema,
	}, nil
}

// Process analyses the task's document and records the terminal state.
//
// Analysis failures of any kind, panics included, are recorded as a failed
// job and are not returned. The returned error is non-nil only when the
// job could not be read or the terminal state could not be written; it
// wraps jobstore.ErrNotFound when the record no longer exists.
//
// A job that is already terminal is not analysed again and its stored
// outcome is returned. Cancellation of ctx is ignored; only the configured
// timeout bounds the analysis.
func (p *Processor) Process(ctx context.Context, task Task) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	logger := p.logger.With("job_id", task.JobID)

	job, err := p.store.Get(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			p.cleanup(logger, task.FileReference)
		}
		return Outcome{}, fmt.Errorf("loading job %s: %w", task.JobID, err)
	}
	if job.Status.Terminal() && job.Result != nil {
		logger.Info("job already finished, skipping", "status", job.Status)
		return Outcome{Status: job.Status, Result: *job.Result}, nil
	}

	start := time.Now()
	outcome := p.run(ctx, task)
	logger.Info("analysis finished",
		"status", outcome.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := p.store.Update(ctx, task.JobID, outcome.Status, outcome.Result); err != nil {
		logger.Error("failed to record job result", "error", err)
		if errors.Is(err, jobstore.ErrNotFound) {
			p.cleanup(logger, task.FileReference)
		}
		return outcome, fmt.Errorf("recording job %s: %w", task.JobID, err)
	}

	p.cleanup(logger, task.FileReference)
	return outcome, nil
}

func (p *Processor) run(ctx context.Context, task Task) Outcome {
	report, err := p.analyze(ctx, task)
	if err == nil {
		var data []byte
		data, err = json.Marshal(report)
		if err == nil {
			err = validateReport(p.schema, data)
		}
		if err == nil {
			return Outcome{Status: models.JobStatusCompleted, Result: string(data)}
		}
	}
	p.logger.Warn("analysis failed", "job_id", task.JobID, "error", err)
	return Outcome{Status: models.JobStatusFailed, Result: FailureDetail(err)}
}

type analyzeResult struct {
	report *analysis.Report
	err    error
}

// analyze calls the analyzer bounded only by the configured timeout.
func (p *Processor) analyze(ctx context.Context, task Task) (*analysis.Report, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := make(chan analyzeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- analyzeResult{err: fmt.Errorf("analysis panicked: %v", r)}
			}
		}()
		report, err := p.analyzer.Analyze(ctx, task.Query, task.FileReference)
		if err == nil && report == nil {
			err = errors.New("analyzer returned no report")
		}
		done <- analyzeResult{report: report, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return nil, p.timeoutError(ctx)
		}
		return res.report, res.err
	case <-ctx.Done():
		return nil, p.timeoutError(ctx)
	}
}

func (p *Processor) timeoutError(ctx context.Context) error {
	return fmt.Errorf("analysis timed out after %s: %w", p.timeout, ctx.Err())
}

func (p *Processor) cleanup(logger *slog.Logger, path string) {
	if p.keepUploads || p.files == nil || path == "" {
		return
	}
	if err := p.files.Remove(path); err != nil {
		logger.Warn("failed to remove upload", "path", path, "error", err)
	}
}

// FailureDetail formats the result stored on a failed job.
func FailureDetail(err error) string {
	return "error: " + err.Error()
}
