package transcribe

import "strings"

// Word is one recognized word of a user utterance.
type Word struct {
	Speaker        *int
	PunctuatedWord string
	Start          float64
	End            float64
}

// Text joins words into utterance text.
func Text(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if p := strings.TrimSpace(w.PunctuatedWord); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// UtteranceBuffer accumulates words from is_final results until the
// recognizer signals the end of the utterance.
type UtteranceBuffer struct {
	words []Word
}

func NewUtteranceBuffer() *UtteranceBuffer {
	return &UtteranceBuffer{}
}

func (b *UtteranceBuffer) AddWords(words []Word) {
	b.words = append(b.words, words...)
}

// AddText is used when a result carries a transcript but no word timings.
func (b *UtteranceBuffer) AddText(text string) {
	for _, field := range strings.Fields(text) {
		b.words = append(b.words, Word{PunctuatedWord: field})
	}
}

// Flush returns the buffered utterance text and resets the buffer. It
// returns "" when nothing was buffered.
func (b *UtteranceBuffer) Flush() string {
	if len(b.words) == 0 {
		return ""
	}
	text := Text(b.words)
	b.words = nil
	return text
}

func (b *UtteranceBuffer) Len() int {
	return len(b.words)
}
