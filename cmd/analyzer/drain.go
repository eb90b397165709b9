package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"kapsentiment/db"
	"kapsentiment/internal/model"
	"kapsentiment/internal/usecase"
)

type batchQueue interface {
	Pop(ctx context.Context, queueKey string, timeout time.Duration) (string, error)
	Push(ctx context.Context, queueKey string, data ...string) error
	Requeue(ctx context.Context, queueKey string, data ...string) error
}

type batchAnalyzer interface {
	Execute(ctx context.Context, ids []int64, prompt string) (*usecase.Result, error)
}

// drainer moves ids from the analyze queue through the analyzer. Ids leave
// the queue for good only once they were analyzed or dead-lettered.
type drainer struct {
	queue      batchQueue
	analyze    batchAnalyzer
	batchSize  int
	popTimeout time.Duration
	total      *usecase.Result
}

func newDrainer(queue batchQueue, analyze batchAnalyzer, batchSize int) *drainer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &drainer{
		queue:      queue,
		analyze:    analyze,
		batchSize:  batchSize,
		popTimeout: popTimeout,
		total:      &usecase.Result{Counts: map[model.SentimentType]int{}},
	}
}

// run drains the queue. It stops early on shutdown or a queue error.
func (d *drainer) run(ctx context.Context) {
	for ctx.Err() == nil {
		ids, err := d.nextBatch(ctx)
		if err != nil {
			slog.Error("error popping from Redis queue", "error", err, "popped", len(ids))
			d.requeue(ids)
			return
		}

		if len(ids) == 0 {
			return
		}

		if !d.process(ctx, ids) {
			return
		}
	}
}

// nextBatch pops up to batchSize ids, returning early once the queue runs dry.
// Ids popped before an error are returned with it.
func (d *drainer) nextBatch(ctx context.Context) ([]int64, error) {
	var ids []int64
	for len(ids) < d.batchSize {
		raw, err := d.queue.Pop(ctx, db.AnalyzeQueueKey, d.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ids, nil
			}
			return ids, err
		}

		if raw == "" {
			break
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Error("invalid disclosure id in queue", "id", raw, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// process reports whether draining should continue.
func (d *drainer) process(ctx context.Context, ids []int64) bool {
	res, err := d.analyze.Execute(ctx, ids, "")
	if res == nil {
		if err != nil {
			slog.Warn("analysis failed, requeueing batch", "error", err, "remaining", len(ids))
			d.requeue(ids)
			return false
		}
		return true
	}

	done := res.TotalAnalyzed
	failed := res.FailedIDs

	// An item cut short by shutdown is reported as failed; it goes back to
	// the queue instead of the dead letter list.
	if ctx.Err() != nil && done > 0 && len(failed) > 0 && failed[len(failed)-1] == ids[done-1] {
		failed = failed[:len(failed)-1]
		res.Failed--
		res.TotalAnalyzed--
		done--
	}

	d.merge(res)
	d.deadLetter(failed)

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		slog.Warn("analysis interrupted, requeueing remaining disclosures", "error", err, "remaining", len(ids)-done)
		d.requeue(ids[done:])
		return false
	}
	return true
}

func (d *drainer) merge(res *usecase.Result) {
	d.total.TotalAnalyzed += res.TotalAnalyzed
	d.total.Successful += res.Successful
	d.total.Failed += res.Failed
	for sentiment, n := range res.Counts {
		d.total.Counts[sentiment] += n
	}
}

func (d *drainer) deadLetter(ids []int64) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Push(ctx, db.DeadLetterKey, formatIDs(ids)...); err != nil {
		slog.Error("error pushing to dead letter queue", "error", err, "count", len(ids))
	}
}

// requeue puts unprocessed ids back at the consuming end of the queue so the
// next run picks them up first.
func (d *drainer) requeue(ids []int64) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Requeue(ctx, db.AnalyzeQueueKey, formatIDs(ids)...); err != nil {
		slog.Error("error requeueing disclosures", "error", err, "count", len(ids))
	}
}

func formatIDs(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
