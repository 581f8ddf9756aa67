package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttrsAreAppended(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")

	ctx := ContextAttrs(context.Background(), slog.String("job_id", "abc"))
	ctx = ContextAttrs(ctx, slog.String("mode", "inline"))
	logger.InfoContext(ctx, "processed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "processed", rec["msg"])
	assert.Equal(t, "abc", rec["job_id"])
	assert.Equal(t, "inline", rec["mode"])
}

func TestContextAttrsDoNotLeakBetweenBranches(t *testing.T) {
	root := ContextAttrs(context.Background(), slog.String("a", "1"))
	left := ContextAttrs(root, slog.String("b", "2"))
	right := ContextAttrs(root, slog.String("c", "3"))

	assert.Len(t, left.Value(slogKey).([]slog.Attr), 2)
	assert.Len(t, right.Value(slogKey).([]slog.Attr), 2)
	assert.Equal(t, "c", right.Value(slogKey).([]slog.Attr)[1].Key)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "text").With("component", "api").Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, slog.LevelInfo, "text").With("component", "api").Info("shown")
	assert.Contains(t, buf.String(), "component=api")
}
