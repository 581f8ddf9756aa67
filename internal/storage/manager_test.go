// manager_test.go - Tests for upload storage
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		store, err := NewLocalStore(uploadDir)
		require.NoError(t, err)
		assert.DirExists(t, uploadDir)
		assert.True(t, filepath.IsAbs(store.Dir()))
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("report.pdf", strings.NewReader("%PDF-1.4 hello"))
		require.NoError(t, err)

		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "report.pdf", info.Name)
		assert.Equal(t, int64(14), info.Size)
		assert.Equal(t, store.Dir(), filepath.Dir(info.Path))
		assert.True(t, strings.HasPrefix(filepath.Base(info.Path), "financial_document_"))
		assert.True(t, strings.HasSuffix(info.Path, ".pdf"))

		data, err := os.ReadFile(info.Path)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 hello", string(data))
	})

	t.Run("defaults extension to pdf", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("statement", strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, ".pdf", filepath.Ext(info.Path))
	})

	t.Run("two saves never collide", func(t *testing.T) {
		store := createTestStore(t)

		a, err := store.Save("same.pdf", strings.NewReader("a"))
		require.NoError(t, err)
		b, err := store.Save("same.pdf", strings.NewReader("b"))
		require.NoError(t, err)
		assert.NotEqual(t, a.Path, b.Path)
	})

	t.Run("rejects empty upload and leaves nothing", func(t *testing.T) {
		store := createTestStore(t)

		_, err := store.Save("empty.pdf", strings.NewReader(""))
		assert.ErrorIs(t, err, ErrEmptyFile)

		entries, err := os.ReadDir(store.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("cleans up on read error", func(t *testing.T) {
		store := createTestStore(t)

		_, err := store.Save("broken.pdf", iotest.ErrReader(errors.New("boom")))
		assert.Error(t, err)

		entries, _ := os.ReadDir(store.Dir())
		assert.Empty(t, entries)
	})
}

func TestLocalStore_Remove(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("report.pdf", strings.NewReader("content"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(info.Path))
	assert.NoFileExists(t, info.Path)

	// removing twice is fine
	assert.NoError(t, store.Remove(info.Path))

	// paths outside the upload dir are refused
	outside := filepath.Join(t.TempDir(), "other.pdf")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0644))
	assert.ErrorIs(t, store.Remove(outside), ErrOutsideUploadDir)
	assert.FileExists(t, outside)
}
