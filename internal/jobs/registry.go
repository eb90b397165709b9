// Package jobs tracks long-running analysis batches and their lifecycle.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"kapsentiment/internal/model"
)

const DefaultMaxEntries = 1000

var (
	ErrNotFound = errors.New("job not found")
	ErrTerminal = errors.New("job already finished")
)

// Task is the unit of work driven by Run. report may be called any number of
// times to publish progress. Tasks must return promptly once ctx is done.
type Task func(ctx context.Context, report func(done, total int)) (any, error)

// Update carries the fields to change; nil fields are left as they are.
type Update struct {
	Status   *model.JobStatus
	Progress *int
	Total    *int
	Result   any
	Error    *string
}

type Filter struct {
	Status  model.JobStatus
	JobType string
}

type entry struct {
	job    model.BatchJob
	cancel context.CancelFunc
}

// Registry holds jobs in memory. It is safe for concurrent use.
//
// The registry is bounded: once MaxEntries jobs are held, creating another
// evicts the oldest finished job, or the oldest job overall when none has
// finished. An evicted job that is still running has its context cancelled.
type Registry struct {
	mu         sync.Mutex
	jobs       *lru.Cache[string, *entry]
	maxEntries int
	root       context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func NewRegistry(maxEntries int, opts ...Option) *Registry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	root, stop := context.WithCancel(context.Background())
	r := &Registry{
		maxEntries: maxEntries,
		root:       root,
		stop:       stop,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	// Only returns an error for a non-positive size.
	r.jobs, _ = lru.NewWithEvict[string, *entry](maxEntries, func(id string, e *entry) {
		if e.cancel != nil {
			e.cancel()
		}
	})
	return r
}

// Create registers a pending job and returns its snapshot.
func (r *Registry) Create(jobType string, params map[string]any) model.BatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.jobs.Len() >= r.maxEntries {
		r.evictOne()
	}

	e := &entry{job: model.BatchJob{
		JobID:     uuid.NewString(),
		JobType:   jobType,
		Params:    params,
		Status:    model.JobPending,
		CreatedAt: r.now(),
	}}
	r.jobs.Add(e.job.JobID, e)

	r.logger.Info("job created", "job_id", e.job.JobID, "job_type", jobType)
	return snapshot(e.job)
}

func (r *Registry) Get(id string) (model.BatchJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs.Peek(id)
	if !ok {
		return model.BatchJob{}, false
	}
	return snapshot(e.job), true
}

// Update applies u to the job. startedAt is stamped on the first transition
// into running and completedAt on the first transition into a terminal
// state. A finished job accepts no further status change.
func (r *Registry) Update(id string, u Update) (model.BatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs.Peek(id)
	if !ok {
		return model.BatchJob{}, ErrNotFound
	}
	if err := r.apply(e, u); err != nil {
		return snapshot(e.job), err
	}
	return snapshot(e.job), nil
}

func (r *Registry) apply(e *entry, u Update) error {
	job := &e.job

	if u.Status != nil {
		if !u.Status.Valid() {
			return fmt.Errorf("invalid job status %q", *u.Status)
		}
		if job.Status.IsTerminal() && *u.Status != job.Status {
			return fmt.Errorf("%w: %s is %s", ErrTerminal, job.JobID, job.Status)
		}

		now := r.now()
		job.Status = *u.Status
		if job.Status == model.JobRunning && job.StartedAt == nil {
			job.StartedAt = &now
		}
		if job.Status.IsTerminal() && job.CompletedAt == nil {
			job.CompletedAt = &now
		}
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.Total != nil {
		job.Total = *u.Total
	}
	if u.Result != nil {
		job.Result = u.Result
	}
	if u.Error != nil {
		msg := *u.Error
		job.Error = &msg
	}
	return nil
}

// Run drives task in its own goroutine. A returned error or a panic marks the
// job failed; it is never propagated to the caller. A task that stops because
// the job was cancelled leaves the job cancelled.
func (r *Registry) Run(id string, task Task) error {
	r.mu.Lock()
	e, ok := r.jobs.Peek(id)
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if e.job.Status.IsTerminal() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, e.job.Status)
	}
	ctx, cancel := context.WithCancel(r.root)
	e.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.execute(ctx, id, task)
	}()
	return nil
}

// Submit creates a job and starts it.
func (r *Registry) Submit(jobType string, params map[string]any, task Task) (model.BatchJob, error) {
	job := r.Create(jobType, params)
	if err := r.Run(job.JobID, task); err != nil {
		return job, err
	}
	return job, nil
}

func (r *Registry) execute(ctx context.Context, id string, task Task) {
	running := model.JobRunning
	if _, err := r.Update(id, Update{Status: &running}); err != nil {
		r.logger.Warn("job not started", "job_id", id, "error", err)
		return
	}
	r.logger.Info("job started", "job_id", id)

	report := func(done, total int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.jobs.Peek(id); ok && !e.job.Status.IsTerminal() {
			e.job.Progress = done
			e.job.Total = total
		}
	}

	result, err := r.safeRun(ctx, task, report)

	switch {
	case err == nil:
		completed := model.JobCompleted
		_, err = r.Update(id, Update{Status: &completed, Result: result})
		if err == nil {
			r.logger.Info("job completed", "job_id", id)
		}
	case ctx.Err() != nil:
		// Cancel already recorded the intent; keep any partial result.
		cancelled := model.JobCancelled
		msg := err.Error()
		_, _ = r.Update(id, Update{Status: &cancelled, Result: result, Error: &msg})
		r.logger.Info("job cancelled", "job_id", id)
	default:
		failed := model.JobFailed
		msg := err.Error()
		_, _ = r.Update(id, Update{Status: &failed, Result: result, Error: &msg})
		r.logger.Error("job failed", "job_id", id, "error", err)
	}
}

func (r *Registry) safeRun(ctx context.Context, task Task, report func(int, int)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return task(ctx, report)
}

// Cancel records the cancellation and signals the running task, if any.
func (r *Registry) Cancel(id string) (model.BatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs.Peek(id)
	if !ok {
		return model.BatchJob{}, ErrNotFound
	}
	if e.job.Status.IsTerminal() {
		return snapshot(e.job), fmt.Errorf("%w: %s is %s", ErrTerminal, id, e.job.Status)
	}

	cancelled := model.JobCancelled
	if err := r.apply(e, Update{Status: &cancelled}); err != nil {
		return snapshot(e.job), err
	}
	if e.cancel != nil {
		e.cancel()
	}

	r.logger.Info("job cancellation requested", "job_id", id)
	return snapshot(e.job), nil
}

// Cleanup removes jobs that finished at least maxAge ago and returns how many
// were removed. Pending and running jobs are never touched.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for _, id := range r.jobs.Keys() {
		e, ok := r.jobs.Peek(id)
		if !ok || e.job.CompletedAt == nil {
			continue
		}
		if !e.job.CompletedAt.After(cutoff) {
			r.jobs.Remove(id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info("cleaned up old jobs", "removed", removed, "max_age", maxAge)
	}
	return removed
}

// List returns matching jobs, newest first.
func (r *Registry) List(f Filter) []model.BatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.jobs.Keys()
	out := make([]model.BatchJob, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		e, ok := r.jobs.Peek(keys[i])
		if !ok {
			continue
		}
		if f.Status != "" && e.job.Status != f.Status {
			continue
		}
		if f.JobType != "" && e.job.JobType != f.JobType {
			continue
		}
		out = append(out, snapshot(e.job))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Len() int {
	return r.jobs.Len()
}

// Close cancels every running task and waits for them to return.
func (r *Registry) Close() {
	r.stop()
	r.wg.Wait()
}

// evictOne drops the oldest finished job to make room. When nothing has
// finished, the cache evicts its oldest entry on Add.
func (r *Registry) evictOne() {
	for _, id := range r.jobs.Keys() {
		if e, ok := r.jobs.Peek(id); ok && e.job.Status.IsTerminal() {
			r.jobs.Remove(id)
			r.logger.Info("evicted finished job", "job_id", id)
			return
		}
	}
	if id, _, ok := r.jobs.GetOldest(); ok {
		r.logger.Warn("evicting unfinished job, registry is full", "job_id", id)
	}
}

func snapshot(j model.BatchJob) model.BatchJob {
	if j.StartedAt != nil {
		t := *j.StartedAt
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	if j.Error != nil {
		msg := *j.Error
		j.Error = &msg
	}
	return j
}
