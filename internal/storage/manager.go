package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/findoc-analyzer/backend/internal/models"
	"github.com/google/uuid"
)

// ErrEmptyFile is returned when an upload carries no bytes.
var ErrEmptyFile = errors.New("uploaded file is empty")

// ErrOutsideUploadDir is returned when asked to remove a path the store does not own.
var ErrOutsideUploadDir = errors.New("path is outside the upload directory")

const filePrefix = "financial_document_"

// Store defines the interface for upload storage.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Remove(path string) error
}

// LocalStore implements Store using the local filesystem. Files live in a
// single directory that worker processes must be able to read.
type LocalStore struct {
	uploadDir string
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	abs, err := filepath.Abs(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload directory: %w", err)
	}

	return &LocalStore{uploadDir: abs}, nil
}

// Dir returns the absolute upload directory.
func (s *LocalStore) Dir() string {
	return s.uploadDir
}

// Save writes the upload to a uniquely named file. Empty uploads are rejected
// and leave nothing behind.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, filePrefix+id+extension(name))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if size == 0 {
		os.Remove(path)
		return nil, ErrEmptyFile
	}

	return &models.FileInfo{
		ID:         id,
		Name:       name,
		Path:       path,
		Size:       size,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Remove deletes a previously saved upload. Missing files are not an error.
func (s *LocalStore) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if filepath.Dir(abs) != s.uploadDir {
		return fmt.Errorf("%w: %s", ErrOutsideUploadDir, path)
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// extension keeps a short, sane suffix from the client name; uploads are
// assumed to be PDFs otherwise.
func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, `/\ `) {
		return ".pdf"
	}
	return ext
}
