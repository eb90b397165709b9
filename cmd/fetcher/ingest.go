package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"kapsentiment/db"
	"kapsentiment/internal/ingest"
	"kapsentiment/pkg/source"
	"kapsentiment/pkg/webhook"
)

const enqueueTimeout = 5 * time.Second

type sourceRunner interface {
	Run(ctx context.Context, c source.Connector, limit int) (ingest.Stats, error)
}

type idQueue interface {
	Push(ctx context.Context, queueKey string, data ...string) error
}

type messenger interface {
	Go(msg webhook.Message)
}

// ingestSource runs one connector and queues every newly saved disclosure,
// including those saved before a failure. It reports whether the fetch loop
// should continue.
func ingestSource(ctx context.Context, runner sourceRunner, queue idQueue, notifier messenger, connector source.Connector) bool {
	stats, err := runner.Run(ctx, connector, fetchLimit)

	stats.Errors += enqueue(queue, stats.IDs)

	if err != nil {
		slog.Error("error fetching disclosures", "source", connector.Name(), "error", err, "saved", len(stats.IDs))
		notifier.Go(webhook.FailureMessage(connector.Name()+" ingest", err.Error()))
		return ctx.Err() == nil
	}

	notifier.Go(webhook.IngestCompleteMessage(stats.Source, stats.Fetched, stats.Saved, stats.Skipped, stats.Errors))
	return true
}

// enqueue pushes ids for analysis and returns how many could not be queued.
// It uses its own deadline so ids saved before a shutdown still get queued.
func enqueue(queue idQueue, ids []int64) int {
	if len(ids) == 0 {
		return 0
	}

	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = strconv.FormatInt(id, 10)
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	if err := queue.Push(ctx, db.AnalyzeQueueKey, values...); err != nil {
		slog.Error("error pushing to Redis queue", "error", err, "count", len(values))
		return len(values)
	}
	return 0
}
