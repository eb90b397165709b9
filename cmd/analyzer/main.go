package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kapsentiment/db"
	"kapsentiment/internal/config"
	"kapsentiment/internal/model"
	"kapsentiment/internal/sentiment"
	"kapsentiment/internal/store"
	"kapsentiment/internal/usecase"
	"kapsentiment/pkg/llm"
	"kapsentiment/pkg/webhook"
)

const popTimeout = 2 * time.Second

func main() {

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := db.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("error connecting to Redis: %v", err)
	}
	defer queue.Close()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("error opening store: %v", err)
	}
	defer st.Close()

	completer, err := llm.NewRegistry().Build(cfg.LLM())
	if err != nil {
		log.Fatalf("error creating completion provider: %v", err)
	}

	analyze := usecase.NewAnalyzeSentiment(st.Disclosures, st.Sentiments, sentiment.NewAnalyzer(completer), slog.Default())
	notifier := webhook.New(cfg.WebhookURL, cfg.WebhookTimeout)

	d := newDrainer(queue, analyze, cfg.AnalyzerBatchSize)
	d.run(ctx)
	total := d.total

	slog.Info("analysis run complete",
		"total", total.TotalAnalyzed,
		"successful", total.Successful,
		"failed", total.Failed)

	if total.TotalAnalyzed > 0 {
		notifier.SentimentComplete(context.Background(),
			total.TotalAnalyzed,
			total.Counts[model.SentimentPositive],
			total.Counts[model.SentimentNeutral],
			total.Counts[model.SentimentNegative])
	}
}
