package phase

import (
	"context"
	"log/slog"
	"time"

	"github.com/vampirenirmal/bookforge/internal/core"
)

// BaseStage provides naming, logging and transient-error retry for stages.
type BaseStage struct {
	name        string
	logger      *slog.Logger
	retryConfig RetryConfig
}

// RetryConfig defines retry behavior for calls made inside a stage.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig provides sensible defaults for retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
}

// NoRetry runs a call exactly once.
var NoRetry = RetryConfig{MaxAttempts: 1}

type BaseStageOption func(*BaseStage)

func WithLogger(logger *slog.Logger) BaseStageOption {
	return func(b *BaseStage) {
		b.logger = logger
	}
}

func WithRetryConfig(config RetryConfig) BaseStageOption {
	return func(b *BaseStage) {
		b.retryConfig = config
	}
}

func NewBaseStage(name string, options ...BaseStageOption) BaseStage {
	base := BaseStage{
		name:        name,
		logger:      slog.Default().With("component", name),
		retryConfig: DefaultRetryConfig,
	}
	for _, option := range options {
		option(&base)
	}
	return base
}

func (b BaseStage) Name() string {
	return b.name
}

func (b BaseStage) Logger() *slog.Logger {
	return b.logger
}

// CanRetry reports whether err is transient.
func (b BaseStage) CanRetry(err error) bool {
	if err == nil || core.IsTerminal(err) {
		return false
	}
	return core.IsRetryable(err)
}

// Retry calls fn until it succeeds, fails with a non-transient error or the
// attempts run out. Exhaustion is reported as a *core.RetryableError.
func (b BaseStage) Retry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := max(b.retryConfig.MaxAttempts, 1)
	delay := b.retryConfig.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				b.logger.Info("call succeeded after retries", "stage", b.name, "op", op, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !b.CanRetry(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		b.logger.Warn("call failed, retrying", "stage", b.name, "op", op, "attempt", attempt, "error", err, "next_delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * b.retryConfig.BackoffFactor)
			if b.retryConfig.MaxDelay > 0 && delay > b.retryConfig.MaxDelay {
				delay = b.retryConfig.MaxDelay
			}
		}
	}

	b.logger.Error("call failed after all retries", "stage", b.name, "op", op, "attempts", attempts, "final_error", lastErr)
	return core.NewRetryableError(lastErr, delay, attempts, attempts)
}

// ValidateContext checks the context before a stage starts work.
func (b BaseStage) ValidateContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return core.NewStageError(b.name, 0, err, nil)
	}
	return nil
}
