package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"kapsentiment/pkg/retry"
)

const (
	defaultLocalBaseURL = "http://localhost:1234/v1"
	defaultLocalAPIKey  = "lm-studio"
	defaultLocalModel   = "QuantFactory/Llama-3-8B-Instruct-Finance-RAG-GGUF"
)

// OpenAIClient talks to the OpenAI chat completions API or any compatible
// self-hosted server (LM Studio, Ollama, vLLM) reachable at BaseURL.
type OpenAIClient struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	return newOpenAICompatible(cfg), nil
}

// NewLocalClient targets a self-hosted OpenAI-compatible endpoint.
func NewLocalClient(cfg Config) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLocalBaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = defaultLocalAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = defaultLocalModel
	}
	cfg.Provider = ProviderLocal
	return newOpenAICompatible(cfg), nil
}

func newOpenAICompatible(cfg Config) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client: &client,
		cfg:    cfg,
		logger: slog.Default().With("provider", cfg.Provider, "model", cfg.Model),
	}
}

func (c *OpenAIClient) Model() string { return c.cfg.Model }

func (c *OpenAIClient) Complete(ctx context.Context, content, prompt string) (string, error) {
	return completeChunked(ctx, c.cfg, c.logger, content, prompt, c.send)
}

func (c *OpenAIClient) send(ctx context.Context, chunk, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(chunk),
		},
		Temperature: openai.Float(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", c.cfg.Provider)
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && isPermanentStatus(apiErr.StatusCode) {
		return retry.Permanent(fmt.Errorf("openai API error: %w", err))
	}
	return fmt.Errorf("openai API error: %w", err)
}

// isPermanentStatus reports client errors other than rate limiting.
func isPermanentStatus(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout
}
