package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"kapsentiment/pkg/retry"
)

const chunkSeparator = "\n\n"

// SplitChunks cuts content into sequential pieces of at most size runes.
func SplitChunks(content string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(content) <= size {
		return []string{content}
	}

	runes := []rune(content)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

type sendFunc func(ctx context.Context, chunk, prompt string) (string, error)

// completeChunked sends every chunk as an independent request with the same
// system prompt and joins the responses in order. Each request gets its own
// timeout and retry budget; one failed chunk fails the whole completion.
func completeChunked(ctx context.Context, cfg Config, logger *slog.Logger, content, prompt string, send sendFunc) (string, error) {
	chunks := SplitChunks(content, cfg.chunkSize())
	responses := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		logger.Debug("sending completion chunk", "provider", cfg.Provider, "chunk", i+1, "chunks", len(chunks))

		var out string
		_, err := retry.Do(ctx, cfg.Retry, logger, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
			defer cancel()

			resp, err := send(callCtx, chunk, prompt)
			if err != nil {
				return err
			}
			out = resp
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		responses = append(responses, out)
	}

	return strings.Join(responses, chunkSeparator), nil
}
