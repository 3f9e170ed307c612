package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/llm"
)

// DefaultMaxTurns bounds how much of the conversation is sent with each reply.
const DefaultMaxTurns = 24

// Tutor produces the companion's spoken turns for one call.
type Tutor struct {
	client   llm.Client
	system   string
	greeting string
	maxTurns int
}

func New(client llm.Client, params call.SessionParameters, ov call.Overrides) *Tutor {
	return &Tutor{
		client:   client,
		system:   SystemPrompt(params, ov),
		greeting: Greeting(params, ov),
		maxTurns: DefaultMaxTurns,
	}
}

func (t *Tutor) Greeting() string {
	return t.greeting
}

// Reply answers the latest user turn. turns are in speaking order.
func (t *Tutor) Reply(ctx context.Context, turns []call.TranscriptEntry) (string, error) {
	if t.client == nil {
		return "", errors.New("tutor has no llm client")
	}
	if len(turns) == 0 {
		return t.greeting, nil
	}
	if len(turns) > t.maxTurns {
		turns = turns[len(turns)-t.maxTurns:]
	}

	messages := make([]llm.Message, 0, len(turns)+2)
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: t.system},
		llm.Message{Role: llm.RoleAssistant, Content: t.greeting},
	)
	for _, turn := range turns {
		role := llm.RoleUser
		if turn.Role == call.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}

	reply, err := t.client.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("tutor reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
