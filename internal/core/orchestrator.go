package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vampirenirmal/bookforge/internal/metrics"
)

// Orchestrator runs stages in order over one Project, checkpointing after
// each stage. A failing stage ends the run with a *StageError.
type Orchestrator struct {
	stages        []Stage
	logger        *slog.Logger
	recorder      metrics.Recorder
	checkpointing bool
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = metrics.OrNoop(r) }
}

// WithCheckpointing toggles checkpoints/{project}.json writes.
func WithCheckpointing(on bool) Option {
	return func(o *Orchestrator) { o.checkpointing = on }
}

func New(stages []Stage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages:        stages,
		logger:        slog.Default().With("component", "orchestrator"),
		recorder:      metrics.NoopRecorder{},
		checkpointing: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stages lists stage names in run order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name()
	}
	return names
}

func (o *Orchestrator) Run(ctx context.Context, p *Project) error {
	return o.RunFrom(ctx, p, 0)
}

// RunFrom skips the first start stages, for resuming a project whose state
// was restored from its artifacts.
func (o *Orchestrator) RunFrom(ctx context.Context, p *Project, start int) error {
	var checkpoints *CheckpointManager
	if o.checkpointing && p.Store != nil {
		checkpoints = NewCheckpointManager(p.Store)
		if start > 0 {
			if err := checkpoints.MarkAsResumed(ctx, p.ID); err != nil {
				o.logger.Debug("no checkpoint to resume", "project", p.ID, "error", err)
			}
		}
	}

	runStart := time.Now()
	o.logger.Info("starting book", "project", p.ID, "stages", len(o.stages), "start", start)

	for i := start; i < len(o.stages); i++ {
		stage := o.stages[i]
		if err := ctx.Err(); err != nil {
			return o.fail(p, stage.Name(), err, runStart)
		}

		stageStart := time.Now()
		o.logger.Info("stage started", "project", p.ID, "stage", stage.Name())

		err := stage.Run(ctx, p)
		elapsed := time.Since(stageStart)
		o.recorder.ObserveStageDuration(stage.Name(), elapsed)
		if err != nil {
			return o.fail(p, stage.Name(), err, runStart)
		}

		o.recorder.IncStageResult(stage.Name(), metrics.ResultSuccess)
		p.CompletedStages = append(p.CompletedStages, stage.Name())
		o.logger.Info("stage completed", "project", p.ID, "stage", stage.Name(), "duration", elapsed)

		if checkpoints != nil {
			var progress *UnitProgressStats
			if p.Progress != nil {
				stats := p.Progress.Stats()
				progress = &stats
			}
			if err := checkpoints.Save(ctx, p, i, stage.Name(), progress); err != nil {
				if IsFatal(err) {
					return o.fail(p, stage.Name(), err, runStart)
				}
				o.logger.Warn("checkpoint failed", "project", p.ID, "stage", stage.Name(), "error", err)
			}
		}
	}

	o.recorder.ObserveBookDuration(time.Since(runStart))
	o.recorder.IncBookOutcome("success")
	o.logger.Info("book completed", "project", p.ID, "document", p.DocumentPath, "duration", time.Since(runStart))
	return nil
}

func (o *Orchestrator) fail(p *Project, stage string, err error, runStart time.Time) error {
	result, outcome := metrics.ResultFatal, "failed"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		result, outcome = metrics.ResultCanceled, "canceled"
	}
	o.recorder.IncStageResult(stage, result)
	o.recorder.IncBookOutcome(outcome)
	o.recorder.ObserveBookDuration(time.Since(runStart))
	o.logger.Error("stage failed", "project", p.ID, "stage", stage, "error", err)

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return NewStageError(stage, 1, err, p)
}
