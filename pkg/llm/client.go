package llm

import (
	"context"
	"time"

	"kapsentiment/pkg/retry"
)

const (
	ProviderLocal     = "local"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultChunkSize = 4000
	defaultTimeout   = 120 * time.Second
)

// Completer sends content to a model under a system prompt and returns the raw text.
type Completer interface {
	Complete(ctx context.Context, content, prompt string) (string, error)
}

// Config selects and tunes a provider. APIKey and BaseURL are the injected
// credentials; nothing else in the repository knows which backend is in use.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	ChunkSize   int
	Timeout     time.Duration
	Retry       retry.Config
}

func (c Config) chunkSize() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}
