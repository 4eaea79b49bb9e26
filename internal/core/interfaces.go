package core

import (
	"context"
)

// Stage is one step of book production. Stages share state through the
// Project and run strictly in order.
type Stage interface {
	Name() string
	Run(ctx context.Context, p *Project) error
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, p *Project) error
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Run(ctx context.Context, p *Project) error { return s.Fn(ctx, p) }

type Storage interface {
	Save(ctx context.Context, path string, data []byte) error
	Load(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, pattern string) ([]string, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
}
