package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/vampirenirmal/bookforge/internal/api"
	"github.com/vampirenirmal/bookforge/internal/jobs"
	"github.com/vampirenirmal/bookforge/internal/metrics"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr        string        `help:"Listen address (overrides server.addr)"`
	Concurrency int           `help:"Books generated at once" default:"1"`
	Grace       time.Duration `help:"How long shutdown waits for running books" default:"30s"`
}

func (c *ServeCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	reg := prom.NewRegistry()
	engine, err := root.engine(cfg, metrics.NewPrometheusRecorder(reg))
	if err != nil {
		return err
	}

	store, err := jobs.NewSQLiteStore(cfg.Paths.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := slog.Default()
	runner := jobs.NewRunner(store, engine,
		jobs.WithConcurrency(c.Concurrency),
		jobs.WithLogger(logger.With("component", "job_runner")),
	)
	server := api.NewServer(cfg.Server.Addr, store, runner,
		api.WithMetrics(metrics.HTTPHandler(reg)),
		api.WithLogger(logger.With("component", "api")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return runner.Shutdown(shutdownCtx)
}
