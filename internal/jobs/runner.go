package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
)

// Generator prepares and runs one book project.
type Generator interface {
	Prepare(req book.Request) (*core.Project, error)
	Run(ctx context.Context, p *core.Project) error
}

// Runner executes submitted requests in the background and records their
// progress in a Store.
type Runner struct {
	store  Store
	gen    Generator
	sem    *semaphore.Weighted
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RunnerOption func(*Runner)

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithConcurrency bounds how many books generate at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(store Store, gen Generator, opts ...RunnerOption) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:  store,
		gen:    gen,
		sem:    semaphore.NewWeighted(1),
		logger: slog.Default().With("component", "job_runner"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit validates req, records a queued job and starts it. The job keeps
// running after ctx ends; only Shutdown stops it.
func (r *Runner) Submit(ctx context.Context, req book.Request) (*Job, error) {
	if r.ctx.Err() != nil {
		return nil, errors.New("job runner is shut down")
	}

	p, err := r.gen.Prepare(req)
	if err != nil {
		return nil, err
	}

	now := r.now()
	job := &Job{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		Idea:      req.Idea,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("record job: %w", err)
	}

	r.logger.Info("job queued", "job_id", job.ID, "project_id", p.ID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(*job, p)
	}()
	return job, nil
}

func (r *Runner) run(job Job, p *core.Project) {
	logger := r.logger.With("job_id", job.ID, "project_id", job.ProjectID)

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.finish(&job, p, err, logger)
		return
	}
	defer r.sem.Release(1)

	job.Status = StatusRunning
	job.UpdatedAt = r.now()
	r.save(&job, logger)

	err := r.gen.Run(r.ctx, p)
	r.finish(&job, p, err, logger)
}

func (r *Runner) finish(job *Job, p *core.Project, err error, logger *slog.Logger) {
	job.FallbackUnits = p.FallbackUnits()
	job.Document = p.DocumentPath
	if n := len(p.CompletedStages); n > 0 {
		job.Stage = p.CompletedStages[n-1]
	}

	switch {
	case err == nil:
		job.Status = StatusSucceeded
		logger.Info("job succeeded", "document", job.Document, "fallback_units", job.FallbackUnits)
	case errors.Is(err, context.Canceled):
		job.Status = StatusCanceled
		job.Error = err.Error()
		logger.Warn("job canceled")
	default:
		job.Status = StatusFailed
		job.Error = err.Error()
		var stageErr *core.StageError
		if errors.As(err, &stageErr) {
			job.Stage = stageErr.Stage
		}
		logger.Error("job failed", "stage", job.Stage, "error", err)
	}
	job.UpdatedAt = r.now()
	r.save(job, logger)
}

func (r *Runner) save(job *Job, logger *slog.Logger) {
	// The request context may be gone; status updates use a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Update(ctx, job); err != nil {
		logger.Error("failed to update job", "status", job.Status, "error", err)
	}
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels running jobs and waits for them until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
