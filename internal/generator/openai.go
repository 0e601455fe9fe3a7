package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Completer is a single-turn chat completion backend.
type Completer interface {
	Complete(ctx context.Context, req Prompt) (Completion, error)
}

type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

type Completion struct {
	Text   string
	Tokens int
	Model  string
}

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds a client for model. An empty baseURL targets api.openai.com.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4TurboPreview
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Complete(ctx context.Context, p Prompt) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("OpenAI returned no choices")
	}
	return Completion{
		Text:   strings.TrimSpace(resp.Choices[0].Message.Content),
		Tokens: resp.Usage.TotalTokens,
		Model:  o.model,
	}, nil
}
