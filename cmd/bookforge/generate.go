package main

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/metrics"
)

// GenerateCmd implements the 'generate' command.
type GenerateCmd struct {
	RequestFlags
}

func (g *GenerateCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	req, err := g.request()
	if err != nil {
		return err
	}
	engine, err := root.engine(cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := engine.Prepare(req)
	if err != nil {
		return err
	}
	if err := engine.Run(ctx, p); err != nil {
		printHint(root, err)
		return err
	}
	printProject(root, filepath.Join(cfg.Paths.OutputDir, p.ID), p)
	return nil
}

// printHint shows how to continue a book that stopped part way.
func printHint(root *CLI, err error) {
	var stageErr *core.StageError
	if errors.As(err, &stageErr) && stageErr.RecoveryHint != "" {
		printFields(root.stdout, "failed stage", stageErr.Stage, "continue with", stageErr.RecoveryHint)
	}
}

func printProject(root *CLI, dir string, p *core.Project) {
	fields := []string{
		"project", p.ID,
		"directory", dir,
		"title", p.Plan.Title,
		"plan", p.PlanSource,
		"units", strconv.Itoa(len(p.Contents)),
		"fallback", strconv.Itoa(p.FallbackUnits()),
		"images", strconv.Itoa(len(p.Images)),
		"pages", strconv.Itoa(len(p.Pages)),
	}
	if p.DocumentPath != "" {
		fields = append(fields, "document", p.DocumentPath)
	}
	for lang, path := range p.Translations {
		fields = append(fields, "translation", lang+" "+path)
	}
	printFields(root.stdout, fields...)
}
