package core

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
)

// StageError represents a failure inside one pipeline stage.
type StageError struct {
	Stage        string
	Attempt      int
	Cause        error
	Partial      any
	Retryable    bool
	RecoveryHint string
	Timestamp    time.Time
}

func (e *StageError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("stage %s failed (attempt %d): %v", e.Stage, e.Attempt, e.Cause)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// IsRetryable indicates if the error can be retried
func (e *StageError) IsRetryable() bool {
	return e.Retryable
}

// RetryableError wraps errors that can be retried with timing information
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
	MaxRetries int
	Attempts   int
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (attempt %d/%d, retry after %v): %v",
		e.Attempts, e.MaxRetries, e.RetryAfter, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// CanRetry checks if more retries are allowed
func (e *RetryableError) CanRetry() bool {
	return e.Attempts < e.MaxRetries
}

// ValidationError represents a record that failed validation.
type ValidationError struct {
	Stage     string
	Field     string
	Message   string
	Value     any
	Timestamp time.Time
}

func (e *ValidationError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("validation failed in %s.%s: %s", e.Stage, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

var (
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("operation timed out")
	ErrNoAPIKey          = errors.New("API key not configured")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNetworkError      = errors.New("network error")
	ErrServerError       = errors.New("server error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRenderFailed      = errors.New("render failed")
	ErrNotFound          = errors.New("not found")
)

// IsRetryable determines if an error can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return retryable.CanRetry()
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.IsRetryable()
	}

	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNetworkError) ||
		errors.Is(err, ErrServerError)
}

// IsTerminal determines if an error cannot be retried
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) && !stageErr.IsRetryable() {
		return true
	}

	return errors.Is(err, ErrNoAPIKey) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMalformedResponse)
}

// IsFatal reports failures that end a run: renderer errors and exhausted
// local resources such as a full disk. Everything else is absorbed by a
// fallback somewhere in the pipeline.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRenderFailed) {
		return true
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, fs.ErrPermission) {
		return true
	}
	return false
}

// NewStageError creates a StageError with timestamp.
func NewStageError(stage string, attempt int, cause error, partial any) *StageError {
	return &StageError{
		Stage:     stage,
		Attempt:   attempt,
		Cause:     cause,
		Partial:   partial,
		Retryable: IsRetryable(cause),
		Timestamp: time.Now(),
	}
}

// NewRetryableError creates a new RetryableError
func NewRetryableError(err error, retryAfter time.Duration, maxRetries, attempts int) *RetryableError {
	return &RetryableError{
		Err:        err,
		RetryAfter: retryAfter,
		MaxRetries: maxRetries,
		Attempts:   attempts,
	}
}

// ValidationFailure turns struct-tag validation errors into a
// *ValidationError for the first failing field. Any other error is returned
// unchanged.
func ValidationFailure(stage string, err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err
	}
	fe := fields[0]
	rule := fe.Tag()
	if fe.Param() != "" {
		rule += "=" + fe.Param()
	}
	return NewValidationError(stage, fe.Namespace(), "fails "+rule, fe.Value())
}

// NewValidationError creates a new ValidationError with timestamp
func NewValidationError(stage, field, message string, value any) *ValidationError {
	return &ValidationError{
		Stage:     stage,
		Field:     field,
		Message:   message,
		Value:     value,
		Timestamp: time.Now(),
	}
}
