// Package analysis defines the analysis function boundary and the default
// document analyzer.
package analysis

import (
	"context"
	"errors"
)

var (
	// ErrUnreadable is returned when the document cannot be opened or read.
	ErrUnreadable = errors.New("document is unreadable")
	// ErrNoContent is returned when no text could be extracted from the document.
	ErrNoContent = errors.New("document has no extractable text")
)

// Analyzer turns a query and a document into a report. Implementations may
// be slow and must be safe for concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, query, documentPath string) (*Report, error)
}

// Func adapts a plain function to the Analyzer interface.
type Func func(ctx context.Context, query, documentPath string) (*Report, error)

func (f Func) Analyze(ctx context.Context, query, documentPath string) (*Report, error) {
	return f(ctx, query, documentPath)
}

// Report is the structured analysis result stored on a completed job.
type Report struct {
	Query        string        `json:"query"`
	Summary      string        `json:"summary"`
	Document     DocumentStats `json:"document"`
	Verification Verification  `json:"verification"`
	Investment   string        `json:"investment_analysis"`
	Risk         string        `json:"risk_assessment"`
	Excerpt      string        `json:"excerpt"`
}

// DocumentStats describes the extracted text.
type DocumentStats struct {
	Pages      int `json:"pages"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
}

// Verification records basic checks on the uploaded file.
type Verification struct {
	IsPDF   bool `json:"is_pdf"`
	HasText bool `json:"has_text"`
}
