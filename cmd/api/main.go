package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"kapsentiment/internal/config"
	"kapsentiment/internal/handler"
	"kapsentiment/internal/jobs"
	"kapsentiment/internal/sentiment"
	"kapsentiment/internal/store"
	"kapsentiment/internal/usecase"
	"kapsentiment/pkg/llm"
	"kapsentiment/pkg/webhook"
)

const jobCleanupInterval = 10 * time.Minute

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

	completer, err := llm.NewRegistry().Build(cfg.LLM())
	if err != nil {
		log.Fatalf("error creating completion provider: %v", err)
	}

	analyzer := sentiment.NewAnalyzer(completer)
	analyze := usecase.NewAnalyzeSentiment(st.Disclosures, st.Sentiments, analyzer, slog.Default())

	registry := jobs.NewRegistry(cfg.JobMaxEntries)
	defer registry.Close()

	notifier := webhook.New(cfg.WebhookURL, cfg.WebhookTimeout)

	disclosureHandler := handler.NewDisclosureHandler(st.Disclosures, st.Sentiments)
	sentimentHandler := handler.NewSentimentHandler(st.Sentiments, st.Disclosures, analyze, registry, notifier)
	jobHandler := handler.NewJobHandler(registry)

	r := gin.Default()

	allowedOrigins := []string{"http://localhost:3000"}

	if cfg.FrontendURL != "" && cfg.FrontendURL != allowedOrigins[0] {
		allowedOrigins = append(allowedOrigins, cfg.FrontendURL)
	}

	slog.Info("AllowOrigins URL:", "urls", allowedOrigins)

	r.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	r.GET("/disclosures/:id", disclosureHandler.GetDisclosure)
	r.GET("/disclosures", disclosureHandler.GetDisclosures)
	r.GET("/sentiment/overview", sentimentHandler.GetOverview)
	r.GET("/sentiment", sentimentHandler.GetSentiments)
	r.POST("/sentiment/analyze", sentimentHandler.Analyze)
	r.POST("/sentiment/analyze/recent", sentimentHandler.AnalyzeRecent)
	r.GET("/jobs/:id", jobHandler.GetJob)
	r.DELETE("/jobs/:id", jobHandler.CancelJob)
	r.GET("/jobs", jobHandler.ListJobs)
	r.GET("/health", disclosureHandler.GetHealth)

	go cleanupJobs(ctx, registry, cfg.JobMaxAge)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	go func() {
		slog.Info("api listening", "addr", cfg.ListenAddr, "store", st.Driver, "llm_provider", cfg.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("error starting server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down server", "error", err)
	}
}

func cleanupJobs(ctx context.Context, registry *jobs.Registry, maxAge time.Duration) {
	ticker := time.NewTicker(jobCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := registry.Cleanup(maxAge); removed > 0 {
				slog.Info("old jobs removed", "removed", removed, "remaining", registry.Len())
			}
		}
	}
}
