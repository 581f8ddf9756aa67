// mock_storage.go - In-memory fakes for the upload store, job store and queue
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/findoc-analyzer/backend/internal/jobstore"
	"github.com/findoc-analyzer/backend/internal/models"
	"github.com/findoc-analyzer/backend/internal/queue"
	"github.com/findoc-analyzer/backend/internal/storage"
)

// MockStorage implements storage.Store for testing
type MockStorage struct {
	files   map[string][]byte
	removed []string
	SaveErr error
	mu      sync.RWMutex
}

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{files: make(map[string][]byte)}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrEmptyFile
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	path := "/uploads/financial_document_" + id + ".pdf"
	m.files[path] = data
	return &models.FileInfo{
		ID:         id,
		Name:       name,
		Path:       path,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}, nil
}

func (m *MockStorage) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	m.removed = append(m.removed, path)
	return nil
}

// Removed returns the paths passed to Remove, in call order.
func (m *MockStorage) Removed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.removed...)
}

// MemoryJobStore implements jobstore.Store in memory.
type MemoryJobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.Job
	writes map[string]int

	// Inject failures. Checked on every call.
	CreateErr error
	UpdateErr error
}

// NewMemoryJobStore creates an empty job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:   make(map[string]*models.Job),
		writes: make(map[string]int),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, query, fileReference string) (*models.Job, error) {
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	job := models.NewJob(uuid.NewString(), query, fileReference, time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (s *MemoryJobStore) Update(_ context.Context, id string, status models.JobStatus, result string) error {
	if err := jobstore.CheckUpdate(status); err != nil {
		return err
	}
	if s.UpdateErr != nil {
		return s.UpdateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobstore.ErrNotFound
	}
	job.Status = status
	job.Result = &result
	job.UpdatedAt = time.Now().UTC()
	s.writes[id]++
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, jobstore.ErrNotFound
	}
	cp := *job
	if job.Result != nil {
		r := *job.Result
		cp.Result = &r
	}
	return &cp, nil
}

func (s *MemoryJobStore) Stats(_ context.Context) (map[models.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := map[models.JobStatus]int{
		models.JobStatusPending:   0,
		models.JobStatusCompleted: 0,
		models.JobStatusFailed:    0,
	}
	for _, job := range s.jobs {
		stats[job.Status]++
	}
	return stats, nil
}

func (s *MemoryJobStore) Close() error { return nil }

// Writes returns how many terminal writes a job has received.
func (s *MemoryJobStore) Writes(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[id]
}

// IDs returns every stored job id, sorted.
func (s *MemoryJobStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MemoryQueue implements queue.Broker with a buffered channel. Nacked
// messages are pushed back onto the channel.
type MemoryQueue struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	acks  int
	nacks int

	PublishErr error
}

// NewMemoryQueue creates a queue holding up to size messages.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		ch:     make(chan []byte, size),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Name() string { return "memory" }

func (q *MemoryQueue) Publish(ctx context.Context, m queue.Message) error {
	if q.PublishErr != nil {
		return q.PublishErr
	}
	body, err := queue.Encode(m)
	if err != nil {
		return err
	}
	return q.PublishRaw(ctx, body)
}

// PublishRaw enqueues an arbitrary body, for malformed message tests.
func (q *MemoryQueue) PublishRaw(ctx context.Context, body []byte) error {
	select {
	case <-q.closed:
		return queue.ErrClosed
	default:
	}
	select {
	case q.ch <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("memory queue full")
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, queue.ErrClosed
	case body := <-q.ch:
		return queue.NewDelivery(body,
			func(context.Context) error {
				q.mu.Lock()
				q.acks++
				q.mu.Unlock()
				return nil
			},
			func(ctx context.Context) error {
				q.mu.Lock()
				q.nacks++
				q.mu.Unlock()
				return q.PublishRaw(ctx, body)
			},
		), nil
	}
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}

// Len returns the number of messages waiting.
func (q *MemoryQueue) Len() int { return len(q.ch) }

// Counts returns acks and nacks seen so far.
func (q *MemoryQueue) Counts() (acks, nacks int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acks, q.nacks
}

// String describes the queue state in test failures.
func (q *MemoryQueue) String() string {
	acks, nacks := q.Counts()
	return fmt.Sprintf("memory queue: %d waiting, %d acked, %d nacked", q.Len(), acks, nacks)
}
