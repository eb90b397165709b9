package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"kapsentiment/pkg/llm"
	"kapsentiment/pkg/retry"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config captures runtime configuration for the API, fetcher and analyzer.
type Config struct {
	ListenAddr  string
	FrontendURL string

	StoreDriver  string
	DatabaseURL  string
	SQLitePath   string
	MaxOpenConns int
	RedisURL     string

	LLMProvider    string
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMChunkSize   int
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration

	FetchMaxAttempts   int
	FetchBackoffBase   time.Duration
	FetchBackoffFactor float64
	FetchMaxBackoff    time.Duration
	FetchTimeout       time.Duration

	WebhookURL     string
	WebhookTimeout time.Duration

	JobMaxAge     time.Duration
	JobMaxEntries int

	FinnhubAPIKey  string
	FinnhubSymbols []string
	FeedURL        string
	FeedAPIKey     string

	AnalyzerBatchSize int
}

// FromEnv creates a configuration instance sourced from environment variables.
// A .env file in the working directory is loaded first when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   getEnv("SQLITE_PATH", "kapsentiment.db"),
		MaxOpenConns: 25,
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", llm.ProviderLocal)),
		LLMBaseURL:     os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       os.Getenv("LLM_MODEL"),
		LLMChunkSize:   llm.DefaultChunkSize,
		LLMTemperature: 0.3,
		LLMMaxTokens:   1024,
		LLMTimeout:     120 * time.Second,

		FetchMaxAttempts:   3,
		FetchBackoffBase:   2 * time.Second,
		FetchBackoffFactor: 2,
		FetchMaxBackoff:    30 * time.Second,
		FetchTimeout:       30 * time.Second,

		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		WebhookTimeout: 10 * time.Second,

		JobMaxAge:     24 * time.Hour,
		JobMaxEntries: 1000,

		FinnhubAPIKey:  os.Getenv("FINNHUB_API_KEY"),
		FinnhubSymbols: splitList(os.Getenv("FINNHUB_SYMBOLS")),
		FeedURL:        os.Getenv("FEED_URL"),
		FeedAPIKey:     os.Getenv("FEED_API_KEY"),

		AnalyzerBatchSize: 20,
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_MAX_OPEN_CONNS", &cfg.MaxOpenConns},
		{"LLM_CHUNK_SIZE", &cfg.LLMChunkSize},
		{"LLM_MAX_TOKENS", &cfg.LLMMaxTokens},
		{"FETCH_MAX_ATTEMPTS", &cfg.FetchMaxAttempts},
		{"JOB_MAX_ENTRIES", &cfg.JobMaxEntries},
		{"ANALYZER_BATCH_SIZE", &cfg.AnalyzerBatchSize},
	}
	for _, v := range ints {
		if raw := os.Getenv(v.key); raw != "" {
			if _, err := fmt.Sscanf(raw, "%d", v.dst); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", v.key, err)
			}
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"LLM_TEMPERATURE", &cfg.LLMTemperature},
		{"FETCH_BACKOFF_FACTOR", &cfg.FetchBackoffFactor},
	}
	for _, v := range floats {
		if raw := os.Getenv(v.key); raw != "" {
			if _, err := fmt.Sscanf(raw, "%f", v.dst); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", v.key, err)
			}
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LLM_TIMEOUT", &cfg.LLMTimeout},
		{"FETCH_BACKOFF_BASE", &cfg.FetchBackoffBase},
		{"FETCH_MAX_BACKOFF", &cfg.FetchMaxBackoff},
		{"FETCH_TIMEOUT", &cfg.FetchTimeout},
		{"WEBHOOK_TIMEOUT", &cfg.WebhookTimeout},
		{"JOB_MAX_AGE", &cfg.JobMaxAge},
	}
	for _, v := range durations {
		if raw := os.Getenv(v.key); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", v.key, err)
			}
			*v.dst = d
		}
	}

	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverSQLite {
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// Retry is the shared backoff policy for document fetches and completion calls.
func (c Config) Retry() retry.Config {
	return retry.Config{
		MaxAttempts: c.FetchMaxAttempts,
		BaseDelay:   c.FetchBackoffBase,
		Factor:      c.FetchBackoffFactor,
		MaxDelay:    c.FetchMaxBackoff,
	}
}

func (c Config) LLM() llm.Config {
	return llm.Config{
		Provider:    c.LLMProvider,
		BaseURL:     c.LLMBaseURL,
		APIKey:      c.LLMAPIKey,
		Model:       c.LLMModel,
		Temperature: c.LLMTemperature,
		MaxTokens:   c.LLMMaxTokens,
		ChunkSize:   c.LLMChunkSize,
		Timeout:     c.LLMTimeout,
		Retry:       c.Retry(),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
