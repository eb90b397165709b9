package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"kapsentiment/pkg/retry"
)

const (
	defaultAnthropicModel     = "claude-haiku-4-5"
	defaultAnthropicMaxTokens = 1024
)

type AnthropicClient struct {
	client *anthropic.Client
	cfg    Config
	logger *slog.Logger
}

func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}
	cfg.Provider = ProviderAnthropic

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client: &client,
		cfg:    cfg,
		logger: slog.Default().With("provider", cfg.Provider, "model", cfg.Model),
	}, nil
}

func (c *AnthropicClient) Model() string { return c.cfg.Model }

func (c *AnthropicClient) Complete(ctx context.Context, content, prompt string) (string, error) {
	return completeChunked(ctx, c.cfg, c.logger, content, prompt, c.send)
}

func (c *AnthropicClient) send(ctx context.Context, chunk, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: prompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(chunk)),
		},
		Temperature: anthropic.Float(c.cfg.Temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && isPermanentStatus(apiErr.StatusCode) {
			return "", retry.Permanent(fmt.Errorf("anthropic API error: %w", err))
		}
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("no response from anthropic")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
