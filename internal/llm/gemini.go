package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func newGeminiClient(apiKey, model string, opts *clientOptions) (*geminiClient, error) {
	config := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.baseURL != "" {
		config.HTTPOptions.BaseURL = opts.baseURL
	}

	client, err := genai.NewClient(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiClient{client: client, model: model, maxTokens: opts.maxTokens}, nil
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	config := &genai.GenerateContentConfig{MaxOutputTokens: int32(c.maxTokens)}
	var contents []*genai.Content
	for _, m := range messages {
		part := []*genai.Part{{Text: m.Content}}
		switch m.Role {
		case RoleSystem:
			config.SystemInstruction = &genai.Content{Parts: part}
		case RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: part})
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: part})
		}
	}
	if len(contents) == 0 {
		return "", errors.New("gemini: no conversation turns provided")
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", errors.New("gemini: empty response text")
	}
	return text, nil
}
