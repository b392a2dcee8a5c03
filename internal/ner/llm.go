package ner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const chatCompletionsPath = "/chat/completions"

// Completer returns the model reply to a single user prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatCompleter talks to an OpenAI compatible chat completions API such as
// Groq.
type ChatCompleter struct {
	client openai.Client
	model  string
}

// NewClient builds an OpenAI compatible API client. endpoint may be either
// the API base URL or a full chat completions URL.
func NewClient(apiKey, endpoint string) (openai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return openai.Client{}, errors.New("llm api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}
	if base := BaseURL(endpoint); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return openai.NewClient(opts...), nil
}

// NewChatCompleter builds a completer for model.
func NewChatCompleter(apiKey, endpoint, model string) (*ChatCompleter, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("llm model is required")
	}
	client, err := NewClient(apiKey, endpoint)
	if err != nil {
		return nil, err
	}
	return &ChatCompleter{client: client, model: model}, nil
}

func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// BaseURL strips a trailing chat completions path so historical full
// endpoint settings keep working. The result ends with a slash.
func BaseURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}
	endpoint = strings.TrimSuffix(endpoint, chatCompletionsPath)
	return endpoint + "/"
}
