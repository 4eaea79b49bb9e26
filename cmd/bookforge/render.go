package main

import (
	"context"
	"path/filepath"

	"github.com/vampirenirmal/bookforge/internal/metrics"
)

// RenderCmd implements the 'render' command.
type RenderCmd struct {
	Project string `arg:"" help:"Project id under the output directory"`
}

func (c *RenderCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	engine, err := root.engine(cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}

	p, err := engine.Render(context.Background(), c.Project)
	if err != nil {
		return err
	}
	printProject(root, filepath.Join(cfg.Paths.OutputDir, p.ID), p)
	return nil
}
