package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

func TestWriterAppendsCallToDaily(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	ended := time.Date(2026, 2, 26, 10, 30, 0, 0, time.Local)
	rec := call.HistoryRecord{
		CallID:      "call-1",
		CompanionID: "comp-1",
		UserName:    "Ada",
		StartedAt:   ended.Add(-10 * time.Minute),
		EndedAt:     ended,
		Transcript: []call.TranscriptEntry{
			{Role: call.RoleAssistant, Content: "Cells make energy from light."},
			{Role: call.RoleUser, Content: "How do plants eat?"},
		},
	}

	path, err := w.AppendCall(rec, "Neura")
	if err != nil {
		t.Fatalf("AppendCall failed: %v", err)
	}
	if path != filepath.Join(dir, "2026-02-26.md") {
		t.Fatalf("unexpected path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "## Neura (10:20:00 - 10:30:00)") {
		t.Errorf("expected heading in content, got: %s", content)
	}
	user := strings.Index(content, "**Ada:** How do plants eat?")
	tutor := strings.Index(content, "**Neura:** Cells make energy from light.")
	if user < 0 || tutor < 0 || user > tutor {
		t.Errorf("expected user line before tutor line, got: %s", content)
	}
}

func TestWriterMultipleCalls(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	ended := time.Date(2026, 2, 26, 10, 30, 0, 0, time.Local)

	_, _ = w.AppendCall(call.HistoryRecord{CallID: "a", CompanionID: "c", StartedAt: ended, EndedAt: ended}, "")
	_, _ = w.AppendCall(call.HistoryRecord{CallID: "b", CompanionID: "c", StartedAt: ended, EndedAt: ended}, "")

	data, _ := os.ReadFile(filepath.Join(dir, "2026-02-26.md"))
	content := string(data)
	if strings.Count(content, "## c (") != 2 {
		t.Fatalf("expected two call headings, got: %s", content)
	}
	if strings.Count(content, "_no transcript_") != 2 {
		t.Fatalf("expected empty transcript markers, got: %s", content)
	}
}
