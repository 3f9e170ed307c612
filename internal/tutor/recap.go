package tutor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sjawhar/ghost-tutor/internal/llm"
)

const (
	minRecapWords = 20
	recapSystem   = "You write short study recaps of tutoring sessions in markdown. List the key ideas covered, anything the student struggled with, and two or three follow-up exercises."
)

type IdempotencyStore interface {
	ClaimRecapRequest(ctx context.Context, callID, transcriptHash string) (bool, error)
}

// Recapper turns a finished call transcript into a study recap.
type Recapper struct {
	client llm.Client
	store  IdempotencyStore
	sleep  func(time.Duration)
}

func NewRecapper(client llm.Client, store IdempotencyStore) *Recapper {
	return &Recapper{client: client, store: store, sleep: time.Sleep}
}

// Recap returns "" without calling the model when the transcript is too
// short or the same transcript was already claimed for this call.
func (r *Recapper) Recap(ctx context.Context, callID, topic, transcript string) (string, error) {
	if len(strings.Fields(transcript)) < minRecapWords {
		return "", nil
	}

	hash := sha256.Sum256([]byte(transcript))
	transcriptHash := hex.EncodeToString(hash[:])
	if r.store != nil {
		claimed, err := r.store.ClaimRecapRequest(ctx, callID, transcriptHash)
		if err != nil {
			return "", fmt.Errorf("claim recap request: %w", err)
		}
		if !claimed {
			return "", nil
		}
	}

	user := SampleTranscript(transcript, 3000, 1000, 2000)
	if topic != "" {
		user = fmt.Sprintf("Topic: %s\n\n%s", topic, user)
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: recapSystem},
		{Role: llm.RoleUser, Content: user},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := r.client.Complete(ctx, messages)
		if err == nil {
			return strings.TrimSpace(result), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			r.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("recap failed after retries: %w", lastErr)
}

// SampleTranscript keeps the first, middle and last words of a long
// transcript.
func SampleTranscript(transcript string, firstN, midN, lastN int) string {
	words := strings.Fields(transcript)
	total := len(words)
	if total <= firstN+midN+lastN {
		return transcript
	}

	first := strings.Join(words[:firstN], " ")
	midStart := (total - midN) / 2
	mid := strings.Join(words[midStart:midStart+midN], " ")
	last := strings.Join(words[total-lastN:], " ")
	return first + "\n\n[...]\n\n" + mid + "\n\n[...]\n\n" + last
}
