package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/findoc-analyzer/backend/internal/models"
)

const tableName = "analysis"

var columns = []string{"id", "query", "file_path", "status", "result", "created_at", "updated_at"}

const schemaDDL = `CREATE TABLE IF NOT EXISTS analysis (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLStore implements Store on a database/sql handle. Every call is a single
// autocommit statement, so concurrent writers in other processes need no
// external locking.
type SQLStore struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
	now     func() time.Time
	closers []func()
}

// NewSQLStore wraps db, creating the table if needed. dialect is one of the
// entgo.io/ent/dialect names and only affects placeholder and quoting style.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string, logger *slog.Logger) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("creating %s table: %w", tableName, err)
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLStore) Create(ctx context.Context, query, fileReference string) (*models.Job, error) {
	job := models.NewJob(uuid.NewString(), query, fileReference, s.now())
	ts := formatTime(job.CreatedAt)

	stmt, args := entsql.Dialect(s.dialect).
		Insert(tableName).
		Columns("id", "query", "file_path", "status", "created_at", "updated_at").
		Values(job.ID, job.Query, job.FileReference, string(job.Status), ts, ts).
		Query()
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		s.logger.Error("job create failed", "error", err)
		return nil, fmt.Errorf("inserting job: %w", err)
	}

	s.logger.Debug("job created", "job_id", job.ID, "file_path", fileReference)
	return job, nil
}

func (s *SQLStore) Update(ctx context.Context, id string, status models.JobStatus, result string) error {
	if err := CheckUpdate(status); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, id, status)
	}
	if !validID(id) {
		return ErrNotFound
	}

	stmt, args := entsql.Dialect(s.dialect).
		Update(tableName).
		Set("status", string(status)).
		Set("result", result).
		Set("updated_at", formatTime(s.now())).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		s.logger.Error("job update failed", "job_id", id, "error", err)
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("job updated", "job_id", id, "status", status)
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.Job, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	stmt, args := entsql.Dialect(s.dialect).
		Select(columns...).
		From(entsql.Table(tableName)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		job                  models.Job
		status               string
		result               sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, stmt, args...).
		Scan(&job.ID, &job.Query, &job.FileReference, &status, &result, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", id, err)
	}

	job.Status = models.JobStatus(status)
	if !job.Status.Valid() {
		return nil, fmt.Errorf("job %s has unknown status %q", id, status)
	}
	if result.Valid {
		job.Result = &result.String
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("job %s created_at: %w", id, err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("job %s updated_at: %w", id, err)
	}
	return &job, nil
}

func (s *SQLStore) Stats(ctx context.Context) (map[models.JobStatus]int, error) {
	stmt, args := entsql.Dialect(s.dialect).
		Select("status", entsql.Count("*")).
		From(entsql.Table(tableName)).
		GroupBy("status").
		Query()

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	stats := map[models.JobStatus]int{
		models.JobStatusPending:   0,
		models.JobStatusCompleted: 0,
		models.JobStatusFailed:    0,
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("counting jobs: %w", err)
		}
		stats[models.JobStatus(status)] = count
	}
	return stats, rows.Err()
}

// Close releases the database handle and any pool behind it.
func (s *SQLStore) Close() error {
	err := s.db.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}

// validID rejects ids that could never have been issued by Create.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
