package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/findoc-analyzer/backend/internal/analysis"
	"github.com/findoc-analyzer/backend/internal/log"
	"github.com/findoc-analyzer/backend/internal/models"
	"github.com/findoc-analyzer/backend/internal/processor"
	"github.com/findoc-analyzer/backend/internal/queue"
	"github.com/findoc-analyzer/backend/internal/testutil"
)

func testAnalyzer() analysis.Analyzer {
	return analysis.Func(func(_ context.Context, query, path string) (*analysis.Report, error) {
		if path == "bad.pdf" {
			return nil, analysis.ErrUnreadable
		}
		return &analysis.Report{
			Query:        query,
			Summary:      "ok",
			Verification: analysis.Verification{IsPDF: true, HasText: true},
		}, nil
	})
}

type harness struct {
	store *testutil.MemoryJobStore
	queue *testutil.MemoryQueue
	proc  *processor.Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewMemoryJobStore()
	proc, err := processor.New(processor.Options{
		Store:    store,
		Analyzer: testAnalyzer(),
		Logger:   log.Discard(),
	})
	require.NoError(t, err)
	return &harness{store: store, queue: testutil.NewMemoryQueue(16), proc: proc}
}

func (h *harness) enqueue(t *testing.T, file string) string {
	t.Helper()
	job, err := h.store.Create(context.Background(), "q", file)
	require.NoError(t, err)
	require.NoError(t, h.queue.Publish(context.Background(), queue.Message{
		JobID:         job.ID,
		Query:         "q",
		FileReference: file,
		EnqueuedAt:    time.Now(),
	}))
	return job.ID
}

func (h *harness) status(id string) models.JobStatus {
	job, err := h.store.Get(context.Background(), id)
	if err != nil {
		return ""
	}
	return job.Status
}

// start runs the worker and returns a func that stops it and waits for Run.
func start(t *testing.T, w *Worker) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestWorker_ProcessesJobs(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	h := newHarness(t)

	ids := []string{h.enqueue(t, "a.pdf"), h.enqueue(t, "b.pdf"), h.enqueue(t, "c.pdf")}

	stop := start(t, New(h.queue, h.proc, log.Discard(), WithConcurrency(2)))
	defer stop()

	for _, id := range ids {
		id := id
		assert.Eventually(t, func() bool {
			return h.status(id) == models.JobStatusCompleted
		}, 2*time.Second, 10*time.Millisecond)
	}
}

func TestWorker_FailureContainment(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	h := newHarness(t)

	failing := h.enqueue(t, "bad.pdf")
	passing := h.enqueue(t, "good.pdf")

	stop := start(t, New(h.queue, h.proc, log.Discard()))
	defer stop()

	assert.Eventually(t, func() bool {
		return h.status(passing) == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	job, err := h.store.Get(context.Background(), failing)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "error: document is unreadable", *job.Result)
}

func TestWorker_DropsMalformedAndMissing(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	h := newHarness(t)

	require.NoError(t, h.queue.PublishRaw(context.Background(), []byte("not msgpack")))
	require.NoError(t, h.queue.Publish(context.Background(), queue.Message{JobID: "8f14e45f-ceea-467f-a8d5-0e0e7e2a4b1c", FileReference: "x.pdf"}))
	good := h.enqueue(t, "good.pdf")

	stop := start(t, New(h.queue, h.proc, log.Discard()))
	defer stop()

	assert.Eventually(t, func() bool {
		return h.status(good) == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		acks, nacks := h.queue.Counts()
		return acks == 3 && nacks == 0
	}, 2*time.Second, 10*time.Millisecond, h.queue.String())
}

// flakyExecutor fails the terminal write a fixed number of times.
type flakyExecutor struct {
	inner    Executor
	failures int32
	calls    atomic.Int32
}

func (f *flakyExecutor) Process(ctx context.Context, task processor.Task) (processor.Outcome, error) {
	if f.calls.Add(1) <= f.failures {
		return processor.Outcome{}, errors.New("database is locked")
	}
	return f.inner.Process(ctx, task)
}

func TestWorker_RequeuesWhenResultNotRecorded(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	h := newHarness(t)
	id := h.enqueue(t, "good.pdf")

	exec := &flakyExecutor{inner: h.proc, failures: 2}
	stop := start(t, New(h.queue, exec, log.Discard(), WithReceiveBackoff(5*time.Millisecond)))
	defer stop()

	assert.Eventually(t, func() bool {
		return h.status(id) == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	acks, nacks := h.queue.Counts()
	assert.Equal(t, 1, acks)
	assert.Equal(t, 2, nacks)
	assert.Equal(t, int32(3), exec.calls.Load())
}

// blockingExecutor holds every job until released.
type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	done    atomic.Bool
}

func (b *blockingExecutor) Process(_ context.Context, _ processor.Task) (processor.Outcome, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	b.done.Store(true)
	return processor.Outcome{Status: models.JobStatusCompleted}, nil
}

func TestWorker_StopWaitsForInFlightJob(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	h := newHarness(t)
	h.enqueue(t, "good.pdf")

	exec := &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(h.queue, exec, log.Discard()).Run(ctx) }()

	<-exec.started
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned before the in-flight job finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(exec.release)
	require.NoError(t, <-done)
	assert.True(t, exec.done.Load())

	acks, _ := h.queue.Counts()
	assert.Equal(t, 1, acks)
}

func TestWorker_StopsWhenQueueCloses(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	h := newHarness(t)

	done := make(chan error, 1)
	go func() { done <- New(h.queue, h.proc, log.Discard(), WithConcurrency(3)).Run(context.Background()) }()

	require.NoError(t, h.queue.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after close")
	}
}
