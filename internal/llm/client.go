// Package llm forwards conversations to the hosted chat-completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

// DefaultTemperature matches the sampling temperature the agent has always used.
const DefaultTemperature = 0.7

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("llm: api key not configured")
	// ErrEmptyResponse is returned when the provider answers without choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
}

type Client struct {
	client      openai.Client
	configured  bool
	timeout     time.Duration
	temperature float64
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// a failed turn is refunded and surfaced, never retried
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &Client{
		client:      openai.NewClient(opts...),
		configured:  strings.TrimSpace(cfg.APIKey) != "",
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
	}
}

// Configured reports whether calls can reach the provider.
func (c *Client) Configured() bool { return c.configured }

// Complete sends the ordered turns to model and returns the assistant text.
func (c *Client) Complete(ctx context.Context, model string, turns []models.Turn) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case models.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    msgs,
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
