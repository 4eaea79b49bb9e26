// Package story assembles the concrete stages that turn a book request into
// a finished, illustrated document.
package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/compose"
	"github.com/vampirenirmal/bookforge/internal/config"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/illustrate"
	"github.com/vampirenirmal/bookforge/internal/imagegen"
	"github.com/vampirenirmal/bookforge/internal/metrics"
	"github.com/vampirenirmal/bookforge/internal/phase"
	"github.com/vampirenirmal/bookforge/internal/render"
	"github.com/vampirenirmal/bookforge/internal/storage"
)

// Stage names in run order.
const (
	StagePlan       = "plan"
	StageCharacters = "characters"
	StageWrite      = "write"
	StageTranslate  = "translate"
	StageIllustrate = "illustrate"
	StageCompose    = "compose"
	StageArtifacts  = "artifacts"
	StageRender     = "render"
)

// Engine wires generators, configuration and stages into runnable books.
type Engine struct {
	cfg      *config.Config
	text     agent.AIClient
	images   imagegen.Generator
	recorder metrics.Recorder
	logger   *slog.Logger
	retry    phase.RetryConfig
	now      func() time.Time
}

type EngineOption func(*Engine)

func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func WithEngineRecorder(r metrics.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = metrics.OrNoop(r) }
}

// WithStageRetry sets the retry policy of the model calls made by stages.
func WithStageRetry(rc phase.RetryConfig) EngineOption {
	return func(e *Engine) { e.retry = rc }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cfg *config.Config, text agent.AIClient, images imagegen.Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:      cfg,
		text:     text,
		images:   images,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default().With("component", "engine"),
		retry:    phase.DefaultRetryConfig,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepare validates req and creates the project directory without running
// anything.
func (e *Engine) Prepare(req book.Request) (*core.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ValidationFailure("request", err))
	}
	id := book.NewProjectID(e.now())
	return core.NewProject(id, req, e.projectStore(id)), nil
}

// Generate produces a complete book for req.
func (e *Engine) Generate(ctx context.Context, req book.Request) (*core.Project, error) {
	p, err := e.Prepare(req)
	if err != nil {
		return nil, err
	}
	return p, e.Run(ctx, p)
}

// Run executes every stage over a prepared project, bounded by the total
// timeout.
func (e *Engine) Run(ctx context.Context, p *core.Project) error {
	return e.runFrom(ctx, p, e.Stages(p.Request), 0)
}

func (e *Engine) runFrom(ctx context.Context, p *core.Project, stages []core.Stage, start int) error {
	if e.cfg.Limits.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Limits.TotalTimeout)
		defer cancel()
	}
	err := e.orchestrator(stages).RunFrom(ctx, p, start)

	var stageErr *core.StageError
	if errors.As(err, &stageErr) && p.Store.Exists(context.WithoutCancel(ctx), storage.PlanJSON) {
		stageErr.RecoveryHint = "bookforge resume " + p.ID
	}
	return err
}

// Resume continues a project from its last checkpoint. Completed stages
// whose output was saved are skipped. The first stage without saved output
// and every stage after it run again, so render always runs.
func (e *Engine) Resume(ctx context.Context, projectID string) (*core.Project, error) {
	store := e.projectStore(projectID)
	checkpoint, err := core.NewCheckpointManager(store).Load(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: project %s has no checkpoint: %v", core.ErrNotFound, projectID, err)
	}

	p := core.NewProject(projectID, book.Request{}, store)
	if err := restoreArtifacts(ctx, p); err != nil {
		return nil, err
	}
	p.PlanSource = checkpoint.PlanSource

	stages := e.Stages(p.Request)
	start := resumePoint(ctx, p, stages, checkpoint.Completed)
	for _, s := range stages[:start] {
		p.CompletedStages = append(p.CompletedStages, s.Name())
	}
	if slices.Contains(p.CompletedStages, StageWrite) {
		p.Progress = core.NewUnitTracker(store, projectID, len(p.Plan.Chapters))
		if err := p.Progress.LoadProgress(ctx); err != nil {
			return nil, err
		}
	}

	e.logger.Info("resuming book", "project", projectID, "skipped", p.CompletedStages)
	return p, e.runFrom(ctx, p, stages, start)
}

// resumePoint is the index of the first stage that must run again.
func resumePoint(ctx context.Context, p *core.Project, stages []core.Stage, completed []string) int {
	for i, s := range stages {
		if !slices.Contains(completed, s.Name()) || !restored(ctx, p, s.Name()) {
			return i
		}
	}
	return len(stages)
}

// restored reports whether the output of stage was loaded back into p.
func restored(ctx context.Context, p *core.Project, stage string) bool {
	switch stage {
	case StagePlan, StageCharacters:
		return p.Plan != nil
	case StageWrite:
		return p.Store.Exists(ctx, storage.ContentsJSON)
	case StageTranslate:
		_, ok := p.Translations[p.Request.Translate]
		return ok
	case StageIllustrate:
		return p.Store.Exists(ctx, storage.ImagesJSON)
	case StageCompose, StageArtifacts:
		return p.Store.Exists(ctx, storage.PagesJSON)
	default:
		return false
	}
}

// Plan runs planning only and saves the plan artifacts.
func (e *Engine) Plan(ctx context.Context, req book.Request) (*core.Project, error) {
	p, err := e.Prepare(req)
	if err != nil {
		return nil, err
	}
	stages := []core.Stage{e.planStage(), e.characterStage()}
	return p, e.orchestrator(stages).Run(ctx, p)
}

// Render composes and renders an existing project again from its saved
// artifacts. No generator is called.
func (e *Engine) Render(ctx context.Context, projectID string) (*core.Project, error) {
	store := e.projectStore(projectID)
	p := core.NewProject(projectID, book.Request{}, store)
	if err := LoadArtifacts(ctx, p); err != nil {
		return nil, err
	}
	stages := []core.Stage{e.composeStage(), e.artifactsStage(), e.renderStage()}
	p.CompletedStages = priorStages(ctx, p, stages)
	return p, e.orchestrator(stages).Run(ctx, p)
}

// priorStages keeps the stages an earlier run completed, minus the ones
// about to run again, so the next checkpoint still lists them.
func priorStages(ctx context.Context, p *core.Project, rerun []core.Stage) []string {
	checkpoint, err := core.NewCheckpointManager(p.Store).Load(ctx, p.ID)
	if err != nil {
		return nil
	}
	var kept []string
	for _, name := range checkpoint.Completed {
		if !slices.ContainsFunc(rerun, func(s core.Stage) bool { return s.Name() == name }) {
			kept = append(kept, name)
		}
	}
	return kept
}

// Stages lists the stages for req in run order.
func (e *Engine) Stages(req book.Request) []core.Stage {
	stages := []core.Stage{e.planStage(), e.characterStage(), e.writeStage()}
	if req.Translate != "" {
		stages = append(stages, e.translateStage())
	}
	return append(stages,
		e.illustrateStage(),
		e.composeStage(),
		e.artifactsStage(),
		e.renderStage(),
	)
}

func (e *Engine) orchestrator(stages []core.Stage) *core.Orchestrator {
	return core.New(stages,
		core.WithLogger(e.logger.With("component", "orchestrator")),
		core.WithRecorder(e.recorder),
	)
}

func (e *Engine) projectStore(id string) *storage.FileSystem {
	return storage.NewFileSystem(filepath.Join(e.cfg.Paths.OutputDir, id))
}

func (e *Engine) stageOptions(name string) []phase.BaseStageOption {
	return []phase.BaseStageOption{
		phase.WithLogger(e.logger.With("component", name)),
		phase.WithRetryConfig(e.retry),
	}
}

func (e *Engine) pipeline(store *storage.FileSystem) *illustrate.Pipeline {
	l := e.cfg.Limits
	return illustrate.NewPipeline(e.images, store,
		illustrate.WithAttempts(l.ImageAttempts),
		illustrate.WithBackoff(l.ImageBackoff),
		illustrate.WithThrottle(l.ImageDelay),
		illustrate.WithParallelism(l.ImageParallelism),
		illustrate.WithRequestTimeout(l.ImageTimeout),
		illustrate.WithFallback(illustrate.ParseFallback(e.cfg.Layout.Fallback)),
		illustrate.WithLogger(e.logger.With("component", "image_pipeline")),
		illustrate.WithRecorder(e.recorder),
	)
}

func (e *Engine) composer() *compose.Composer {
	return compose.NewComposer(
		compose.WithMode(compose.Mode(e.cfg.Layout.ComposeMode)),
		compose.WithNumberCover(e.cfg.Layout.NumberCover),
		compose.WithLogger(e.logger.With("component", "composer")),
	)
}

func (e *Engine) layout(p *core.Project) render.Layout {
	return render.Layout{
		OutputDir:         p.Store.BaseDir(),
		PageSize:          e.cfg.Layout.PageSize,
		MarginCM:          e.cfg.Layout.MarginCM,
		CoverTitleOverlay: e.cfg.Layout.CoverTitleOverlay,
	}
}
