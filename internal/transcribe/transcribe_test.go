package transcribe

import (
	"testing"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

func intPtr(v int) *int { return &v }

func TestTextJoinsPunctuatedWords(t *testing.T) {
	words := []Word{
		{Speaker: intPtr(0), PunctuatedWord: "What", Start: 0.0, End: 0.2},
		{Speaker: intPtr(0), PunctuatedWord: " is ", Start: 0.2, End: 0.4},
		{Speaker: intPtr(0), PunctuatedWord: "", Start: 0.4, End: 0.5},
		{Speaker: intPtr(0), PunctuatedWord: "photosynthesis?", Start: 0.5, End: 1.2},
	}
	if got := Text(words); got != "What is photosynthesis?" {
		t.Fatalf("Text = %q", got)
	}
}

func TestUtteranceBufferFlush(t *testing.T) {
	b := NewUtteranceBuffer()
	if got := b.Flush(); got != "" {
		t.Fatalf("empty flush = %q", got)
	}

	b.AddWords([]Word{{PunctuatedWord: "Explain"}, {PunctuatedWord: "fractions"}})
	b.AddText("like  I'm five.")
	if b.Len() != 5 {
		t.Fatalf("expected 5 buffered words, got %d", b.Len())
	}
	if got := b.Flush(); got != "Explain fractions like I'm five." {
		t.Fatalf("Flush = %q", got)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after flush, got %d", b.Len())
	}
}

func TestLinesAreChronological(t *testing.T) {
	entries := []call.TranscriptEntry{
		{Role: call.RoleAssistant, Content: "Great question."},
		{Role: call.RoleUser, Content: "Why is the sky blue?"},
	}

	lines := Lines(entries, "Neura", "")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].FormatMarkdown() != "**You:** Why is the sky blue?" {
		t.Fatalf("first line = %q", lines[0].FormatMarkdown())
	}
	if lines[1].FormatMarkdown() != "**Neura:** Great question." {
		t.Fatalf("second line = %q", lines[1].FormatMarkdown())
	}
}

func TestSpeakerLabelDefaults(t *testing.T) {
	if got := SpeakerLabel(call.RoleAssistant, "", ""); got != "Tutor" {
		t.Fatalf("assistant default = %q", got)
	}
	if got := SpeakerLabel(call.RoleUser, "", "Ada"); got != "Ada" {
		t.Fatalf("user label = %q", got)
	}
}
