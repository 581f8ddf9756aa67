package jobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/findoc-analyzer/backend/internal/log"
	"github.com/findoc-analyzer/backend/internal/models"
)

func TestDuckDBStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Config{
		Driver: "duckdb",
		DSN:    filepath.Join(t.TempDir(), "analysis.duckdb"),
	}, log.Discard())
	require.NoError(t, err)
	defer store.Close()

	job, err := store.Create(ctx, "q", "f.pdf")
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, job.ID, models.JobStatusCompleted, "ok"))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, "ok", *got.Result)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.JobStatusCompleted])
}
