package phase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of processing one item.
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// Processor handles one item. Item errors are collected, not fatal.
type Processor[T, R any] func(ctx context.Context, index int, item T) (R, error)

// WorkerPool processes items concurrently and returns outcomes in input order.
type WorkerPool[T, R any] struct {
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

type WorkerPoolOption func(*workerPoolConfig)

type workerPoolConfig struct {
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// WithWorkers sets the number of concurrent workers
func WithWorkers(workers int) WorkerPoolOption {
	return func(c *workerPoolConfig) {
		if workers > 0 {
			c.workers = workers
		}
	}
}

// WithTimeout bounds each item.
func WithTimeout(timeout time.Duration) WorkerPoolOption {
	return func(c *workerPoolConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithPoolLogger(logger *slog.Logger) WorkerPoolOption {
	return func(c *workerPoolConfig) { c.logger = logger }
}

func NewWorkerPool[T, R any](options ...WorkerPoolOption) *WorkerPool[T, R] {
	config := workerPoolConfig{
		workers: 1,
		timeout: 30 * time.Second,
		logger:  slog.Default().With("component", "worker_pool"),
	}
	for _, option := range options {
		option(&config)
	}
	return &WorkerPool[T, R]{
		workers: config.workers,
		timeout: config.timeout,
		logger:  config.logger,
	}
}

// Process runs processor over items with at most p.workers in flight. The
// returned error is only ever the context's.
func (p *WorkerPool[T, R]) Process(ctx context.Context, items []T, processor Processor[T, R]) ([]Outcome[R], error) {
	outcomes := make([]Outcome[R], len(items))
	if len(items) == 0 {
		return outcomes, nil
	}

	p.logger.Debug("worker pool started", "workers", p.workers, "items", len(items), "timeout", p.timeout)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome[R]{Index: i, Err: err}
				return err
			}
			itemCtx, cancel := context.WithTimeout(gctx, p.timeout)
			defer cancel()

			v, err := processor(itemCtx, i, item)
			outcomes[i] = Outcome[R]{Index: i, Value: v, Err: err}
			if err != nil {
				p.logger.Warn("work item failed", "index", i, "error", err)
			}
			return nil
		})
	}
	err := g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	p.logger.Debug("worker pool finished", "items", len(items), "failed", failed)
	return outcomes, err
}
