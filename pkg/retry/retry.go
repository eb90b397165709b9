// Package retry runs transient operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Config holds the retry policy shared by fetchers and completion providers.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// Factor multiplies the delay after every failed attempt.
	Factor float64

	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Factor:      2.0,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	factor := c.Factor
	if factor < 1 {
		factor = 1
	}

	multiplier := 1.0
	for i := 1; i < attempt && multiplier < math.MaxInt64; i++ {
		multiplier *= factor
	}

	// Clamp before converting; an overflowing float gives a negative Duration.
	raw := float64(c.BaseDelay) * multiplier
	d := time.Duration(math.MaxInt64)
	if raw < math.MaxInt64 {
		d = time.Duration(raw)
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return "retries exhausted: " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, returns a permanent error, the context ends,
// or MaxAttempts is reached. It returns the number of attempts made.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, fn func(ctx context.Context) error) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return attempt, err
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}

		if attempt < maxAttempts {
			wait := cfg.Backoff(attempt)
			logger.Warn("attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"backoff", wait,
				"error", err)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}
