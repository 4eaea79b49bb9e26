package core

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		terminal  bool
		fatal     bool
	}{
		{"nil", nil, false, false, false},
		{"rate limited", fmt.Errorf("openai: %w", ErrRateLimited), true, false, false},
		{"timeout", ErrTimeout, true, false, false},
		{"server", ErrServerError, true, false, false},
		{"network", ErrNetworkError, true, false, false},
		{"no key", ErrNoAPIKey, false, true, false},
		{"invalid input", ErrInvalidInput, false, true, false},
		{"malformed", ErrMalformedResponse, false, true, false},
		{"render", fmt.Errorf("pdf: %w", ErrRenderFailed), false, false, true},
		{"disk full", &fs.PathError{Op: "write", Path: "x", Err: syscall.ENOSPC}, false, false, true},
		{"permission", fs.ErrPermission, false, false, true},
		{"retries left", NewRetryableError(errors.New("x"), time.Second, 3, 1), true, false, false},
		{"retries exhausted", NewRetryableError(ErrServerError, time.Second, 3, 3), false, false, false},
		{"retryable stage", NewStageError("write", 1, ErrTimeout, nil), true, false, false},
		{"terminal stage", NewStageError("render", 1, ErrRenderFailed, nil), false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsTerminal(tt.err); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestStageErrorMessage(t *testing.T) {
	err := NewStageError("render", 2, ErrRenderFailed, nil)
	if got := err.Error(); got != "stage render failed (attempt 2): render failed" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrRenderFailed) {
		t.Error("StageError does not unwrap to its cause")
	}

	v := NewValidationError("plan", "title", "required", "")
	if got := v.Error(); got != "validation failed in plan.title: required" {
		t.Errorf("Error() = %q", got)
	}
}

func TestValidationFailure(t *testing.T) {
	type sample struct {
		Idea string `validate:"required,min=3"`
	}
	err := ValidationFailure("request", validator.New().Struct(sample{Idea: "ab"}))

	var v *ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("ValidationFailure() = %T, want *ValidationError", err)
	}
	if v.Field != "sample.Idea" || v.Value != "ab" {
		t.Errorf("ValidationError = %+v", v)
	}
	if got := v.Error(); got != "validation failed in request.sample.Idea: fails min=3" {
		t.Errorf("Error() = %q", got)
	}

	plain := errors.New("boom")
	if got := ValidationFailure("request", plain); got != plain {
		t.Errorf("ValidationFailure() changed a plain error: %v", got)
	}
}
