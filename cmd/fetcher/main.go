package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"kapsentiment/db"
	"kapsentiment/internal/config"
	"kapsentiment/internal/ingest"
	"kapsentiment/internal/store"
	"kapsentiment/pkg/extract"
	"kapsentiment/pkg/source"
	"kapsentiment/pkg/webhook"
)

const fetchLimit = 50

func main() {

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("error opening store: %v", err)
	}
	defer st.Close()

	queue, err := db.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("error connecting to Redis: %v", err)
	}
	defer queue.Close()

	var connectors []source.Connector
	if cfg.FeedURL != "" {
		connectors = append(connectors, source.NewFeedConnector(cfg.FeedURL, cfg.FeedAPIKey, source.WithFeedRetry(cfg.Retry())))
	}
	if cfg.FinnhubAPIKey != "" && len(cfg.FinnhubSymbols) > 0 {
		connectors = append(connectors, source.NewFinnhubConnector(cfg.FinnhubAPIKey, cfg.FinnhubSymbols))
	}

	if len(connectors) == 0 {
		slog.Error("no disclosure sources configured")
		return
	}

	fetcher := extract.NewFetcher(extract.DefaultRegistry(), cfg.Retry(), cfg.FetchTimeout)
	pipeline := ingest.NewPipeline(st.Disclosures, fetcher, slog.Default())
	notifier := webhook.New(cfg.WebhookURL, cfg.WebhookTimeout)
	defer notifier.Wait()

	for _, connector := range connectors {
		if !ingestSource(ctx, pipeline, queue, notifier, connector) {
			return
		}
	}
}
