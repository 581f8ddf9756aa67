package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

var pdfMagic = []byte("%PDF-")

// Config tunes the DocumentAnalyzer.
type Config struct {
	Pdftotext  string // path to the pdftotext binary
	MaxExcerpt int    // runes of text kept in the report, 0 keeps none
}

// DocumentAnalyzer extracts the text of a document and produces a basic
// statistical report. PDFs go through pdftotext; anything else, or a PDF
// that pdftotext cannot handle, is decoded as raw UTF-8.
type DocumentAnalyzer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewDocumentAnalyzer creates a DocumentAnalyzer. A nil runner uses os/exec.
func NewDocumentAnalyzer(cfg Config, runner Runner, logger *slog.Logger) *DocumentAnalyzer {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	logger = logger.With("component", "analyzer")
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &DocumentAnalyzer{cfg: cfg, runner: runner, logger: logger}
}

func (a *DocumentAnalyzer) Analyze(ctx context.Context, query, documentPath string) (*Report, error) {
	isPDF, err := sniffPDF(documentPath)
	if err != nil {
		return nil, err
	}

	text, pages, err := a.readText(ctx, documentPath, isPDF)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoContent
	}

	words := len(strings.Fields(text))
	chars := utf8.RuneCountInString(text)

	return &Report{
		Query:   query,
		Summary: fmt.Sprintf("Analysis for %q covering %d page(s) and %d words.", query, pages, words),
		Document: DocumentStats{
			Pages:      pages,
			Words:      words,
			Characters: chars,
		},
		Verification: Verification{IsPDF: isPDF, HasText: true},
		Investment:   fmt.Sprintf("Document size: %d words, %d characters. Detailed analysis not implemented.", words, chars),
		Risk:         "Basic risk check complete. Detailed risk models are not implemented in this debug build.",
		Excerpt:      excerpt(text, a.cfg.MaxExcerpt),
	}, nil
}

func (a *DocumentAnalyzer) readText(ctx context.Context, path string, isPDF bool) (string, int, error) {
	if isPDF {
		out, _, err := a.runner.Run(ctx, a.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
		if err == nil {
			text := string(out)
			// pdftotext separates pages with a form feed
			pages := 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
			return normalize(text), pages, nil
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		a.logger.Warn("pdftotext failed, falling back to raw text", "path", path, "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return normalize(rawText(data)), 1, nil
}

// sniffPDF checks the file exists and reports whether it starts with the PDF magic.
func sniffPDF(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return bytes.Equal(head[:n], pdfMagic), nil
}

// rawText decodes data as UTF-8, dropping invalid sequences and control characters.
func rawText(data []byte) string {
	s := strings.ToValidUTF8(string(data), "")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// normalize trims every line and drops empty ones. Page breaks become newlines.
func normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\f", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func excerpt(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}
