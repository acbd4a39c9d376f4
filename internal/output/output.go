// Package output writes the user-facing result files: transcript, quotes,
// and analysis documents, each with a header block identifying the source.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/snarg/pullquote/internal/extract"
	"github.com/snarg/pullquote/internal/fetch"
	"github.com/snarg/pullquote/internal/stamp"
)

// Writer writes result files under a single output directory, keyed by the
// source's sanitized title.
type Writer struct {
	dir string
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// TranscriptPath returns where the transcript for a source lives, whether
// or not it exists yet. Used for transcript cache lookups.
func (w *Writer) TranscriptPath(src *fetch.Source) string {
	return filepath.Join(w.dir, fetch.Sanitize(src.Title)+"_transcript.txt")
}

// CachedTranscript returns the previously written transcript body for a
// source, or ("", false) when none exists. The header block is stripped so
// callers get the same text WriteTranscript was given.
func (w *Writer) CachedTranscript(src *fetch.Source) (string, bool) {
	data, err := os.ReadFile(w.TranscriptPath(src))
	if err != nil {
		return "", false
	}
	body := string(data)
	if i := strings.Index(body, headerEnd); i >= 0 {
		body = body[i+len(headerEnd):]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	return body, true
}

// WriteTranscript writes {title}_transcript.txt and returns its path.
func (w *Writer) WriteTranscript(src *fetch.Source, transcript string) (string, error) {
	path := w.TranscriptPath(src)
	return path, w.write(path, w.header("Transcript", src)+transcript+"\n")
}

// WriteQuotes writes {title}_quotes.txt: one stamped block per moment, in
// input order. Failed moments get a note instead of a quote so the output
// never silently drops a requested timestamp.
func (w *Writer) WriteQuotes(src *fetch.Source, blocks []extract.QuoteBlock) (string, error) {
	var sb strings.Builder
	sb.WriteString(w.header("Quotes", src))
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("[" + b.Clock + "]\n")
		if b.Err != nil {
			sb.WriteString(fmt.Sprintf("(extraction failed: %v)\n", b.Err))
			continue
		}
		sb.WriteString(strings.TrimSpace(b.Text) + "\n")
	}
	path := filepath.Join(w.dir, fetch.Sanitize(src.Title)+"_quotes.txt")
	return path, w.write(path, sb.String())
}

// WriteAnalysis writes {title}_analysis.txt.
func (w *Writer) WriteAnalysis(src *fetch.Source, question, analysis string) (string, error) {
	var sb strings.Builder
	sb.WriteString(w.header("Analysis", src))
	sb.WriteString("Question: " + question + "\n\n")
	sb.WriteString(strings.TrimSpace(analysis) + "\n")
	path := filepath.Join(w.dir, fetch.Sanitize(src.Title)+"_analysis.txt")
	return path, w.write(path, sb.String())
}

const headerEnd = "=====\n\n"

func (w *Writer) header(kind string, src *fetch.Source) string {
	return fmt.Sprintf("=====\n%s\nTitle: %s\nSource: %s\nDuration: %s\nGenerated: %s\n%s",
		kind,
		src.Title,
		src.URL,
		stamp.Format(int(src.Duration)),
		w.now().UTC().Format(time.RFC3339),
		headerEnd,
	)
}

// write lands content atomically via temp file + rename.
func (w *Writer) write(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".out-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
