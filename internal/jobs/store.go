// Package jobs keeps the catalog of book generation jobs and runs them in
// the background.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/vampirenirmal/bookforge/internal/core"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Done reports whether the status is final.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

var ErrJobNotFound = fmt.Errorf("job %w", core.ErrNotFound)

type Job struct {
	ID            string    `json:"job_id"`
	ProjectID     string    `json:"project_id"`
	Idea          string    `json:"idea"`
	Status        Status    `json:"status"`
	Stage         string    `json:"stage,omitempty"`
	Document      string    `json:"document,omitempty"`
	FallbackUnits int       `json:"fallback_units"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists jobs. List returns the newest jobs first.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit, offset int) ([]*Job, error)
	Update(ctx context.Context, job *Job) error
	Close() error
}
