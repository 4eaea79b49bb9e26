package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vampirenirmal/bookforge/internal/metrics"
)

// PlanCmd implements the 'plan' command.
type PlanCmd struct {
	RequestFlags
}

func (c *PlanCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	req, err := c.request()
	if err != nil {
		return err
	}
	engine, err := root.engine(cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}

	p, err := engine.Plan(context.Background(), req)
	if err != nil {
		return err
	}

	printFields(root.stdout,
		"project", p.ID,
		"directory", filepath.Join(cfg.Paths.OutputDir, p.ID),
		"title", p.Plan.Title,
		"plan", p.PlanSource,
		"continue with", "bookforge resume "+p.ID,
	)
	for i, ch := range p.Plan.Chapters {
		fmt.Fprintf(root.stdout, "%3d. %s (%d images)\n", i+1, ch.Title, ch.ImagePlaceholdersNeeded)
	}
	return nil
}
