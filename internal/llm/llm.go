package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultMaxTokens = 1024
)

type Message struct {
	Role    string
	Content string
}

// Client produces one completion for a chat history.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	maxTokens int
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

// WithMaxTokens caps the reply length. Spoken tutor turns stay short.
func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// ParseModel splits "provider/model" into its parts.
func ParseModel(model string) (provider, modelName string, err error) {
	provider, modelName, ok := strings.Cut(strings.TrimSpace(model), "/")
	if !ok || provider == "" || modelName == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return provider, modelName, nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(o)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", provider)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o), nil
	case "anthropic":
		return newAnthropicClient(apiKey, model, o), nil
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}
