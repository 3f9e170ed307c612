package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/transcribe"
)

// Writer appends call transcripts to one markdown file per day.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Dir() string {
	return w.dir
}

// AppendCall writes a heading for the call followed by its transcript in
// speaking order. It returns the path written.
func (w *Writer) AppendCall(rec call.HistoryRecord, tutorName string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.PathFor(rec.EndedAt)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	title := tutorName
	if title == "" {
		title = rec.CompanionID
	}
	fmt.Fprintf(&b, "## %s (%s - %s)\n\n", title,
		rec.StartedAt.Local().Format("15:04:05"), rec.EndedAt.Local().Format("15:04:05"))
	fmt.Fprintf(&b, "_call %s_\n\n", rec.CallID)
	lines := transcribe.Lines(rec.Transcript, tutorName, rec.UserName)
	if len(lines) == 0 {
		b.WriteString("_no transcript_\n")
	}
	for _, line := range lines {
		b.WriteString(line.FormatMarkdown())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if _, err := f.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (w *Writer) CurrentPath() string {
	return w.PathFor(time.Now())
}

// PathFor returns the export file for the local day of t.
func (w *Writer) PathFor(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return filepath.Join(w.dir, t.Local().Format("2006-01-02")+".md")
}
