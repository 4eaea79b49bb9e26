package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vampirenirmal/bookforge/internal/metrics"
)

// ResumeCmd implements the 'resume' command.
type ResumeCmd struct {
	Project string `arg:"" help:"Project id under the output directory"`
}

func (c *ResumeCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	engine, err := root.engine(cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := engine.Resume(ctx, c.Project)
	if err != nil {
		printHint(root, err)
		return err
	}
	printProject(root, filepath.Join(cfg.Paths.OutputDir, p.ID), p)
	return nil
}
