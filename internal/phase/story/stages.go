package story

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/illustrate"
	"github.com/vampirenirmal/bookforge/internal/render"
	"github.com/vampirenirmal/bookforge/internal/storage"
	"github.com/vampirenirmal/bookforge/internal/storyctx"
)

func (e *Engine) planStage() core.Stage {
	return core.StageFunc{StageName: StagePlan, Fn: func(ctx context.Context, p *core.Project) error {
		req := p.Request

		if req.FindTrends {
			finder := NewTrendFinder(e.text, e.cfg.Trends.Feeds,
				WithTrendMaxItems(e.cfg.Trends.MaxItems),
				WithTrendLogger(e.logger.With("component", "trends")))
			report, err := finder.Find(ctx, req.Idea, req.Overrides.Genre)
			if err != nil {
				return err
			}
			p.TrendSummary = report.String()
			if err := saveJSON(ctx, p.Store, storage.TrendsJSON, report); err != nil {
				return err
			}
		}

		planner := NewPlanner(e.text, e.stageOptions("planner")...)
		plan, source, err := planner.Plan(ctx, p.ID, PlanInput{Request: req, Trends: p.TrendSummary})
		if err != nil {
			return err
		}

		if req.StyleExample != "" && req.Overrides.WritingStyleGuide == "" {
			imitator := NewStyleImitator(e.text, e.stageOptions("style")...)
			profile, err := imitator.Analyze(ctx, req.StyleExample)
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case err != nil:
				e.logger.Warn("style imitation failed, keeping planned style", "project", p.ID, "error", err)
			default:
				plan.WritingStyleGuide = profile.WritingGuide()
				p.StyleGuide = plan.WritingStyleGuide
				if err := saveJSON(ctx, p.Store, storage.StyleJSON, profile); err != nil {
					return err
				}
			}
		}

		p.Plan, p.PlanSource = plan, source
		return nil
	}}
}

func (e *Engine) characterStage() core.Stage {
	return core.StageFunc{StageName: StageCharacters, Fn: func(ctx context.Context, p *core.Project) error {
		analyzer, _ := e.text.(agent.ImageAnalyzer)
		processor := NewCharacterProcessor(analyzer, e.stageOptions("characters")...)
		characters, err := processor.Process(ctx, p.Request.Characters)
		if err != nil {
			return err
		}
		if len(characters) > 0 {
			p.Plan.Characters = characters
		}
		return writePlanArtifacts(ctx, p)
	}}
}

func (e *Engine) writeStage() core.Stage {
	return core.StageFunc{StageName: StageWrite, Fn: func(ctx context.Context, p *core.Project) error {
		plan := p.Plan
		p.Story = storyctx.New(
			storyctx.WithThemes(plan.Themes()...),
			storyctx.WithRoster(plan.CharacterNames()...),
			storyctx.WithMaxChars(e.cfg.Limits.MaxContextChars),
		)
		p.Progress = core.NewUnitTracker(p.Store, p.ID, len(plan.Chapters))

		kind := p.Request.UnitKind
		if kind == "" {
			kind = book.UnitChapter
		}
		logger := e.logger.With("component", "sequencer")
		seq := NewSequencer(plan, NewAgentWriter(e.text, logger),
			WithStoryContext(p.Story),
			WithUnitKind(kind),
			WithUnitTimeout(e.cfg.Limits.UnitTimeout),
			WithLogger(logger),
			WithRecorder(e.recorder),
			WithProgress(p.Progress),
		)

		contents, err := seq.Run(ctx)
		p.Contents = contents
		p.Placeholders = seq.AllImagePlaceholders()
		return err
	}}
}

func (e *Engine) translateStage() core.Stage {
	return core.StageFunc{StageName: StageTranslate, Fn: func(ctx context.Context, p *core.Project) error {
		lang := p.Request.Translate
		tr := NewTranslator(e.text, e.cfg.Limits.TranslateWorkers, e.cfg.Limits.UnitTimeout, e.stageOptions("translator")...)
		translations, err := tr.Translate(ctx, lang, p.Contents)
		if err != nil {
			return err
		}

		name := storage.TranslationSummaryFile(lang)
		if err := p.Store.Save(ctx, name, TranslationSummary(lang, p.Plan.Title, translations)); err != nil {
			return fmt.Errorf("saving translation summary: %w", err)
		}
		p.Translations[lang] = name
		return nil
	}}
}

func (e *Engine) illustrateStage() core.Stage {
	return core.StageFunc{StageName: StageIllustrate, Fn: func(ctx context.Context, p *core.Project) error {
		result, err := e.pipeline(p.Store).Run(ctx, p.Plan, p.Placeholders)
		if result != nil {
			p.Images = result.Images
			p.StyleReference = result.Reference
		}
		return err
	}}
}

func (e *Engine) composeStage() core.Stage {
	return core.StageFunc{StageName: StageCompose, Fn: func(_ context.Context, p *core.Project) error {
		p.Pages = e.composer().Compose(p.Contents, imageResult(p).Paths())
		return nil
	}}
}

func (e *Engine) artifactsStage() core.Stage {
	return core.StageFunc{StageName: StageArtifacts, Fn: WriteArtifacts}
}

func (e *Engine) renderStage() core.Stage {
	return core.StageFunc{StageName: StageRender, Fn: func(ctx context.Context, p *core.Project) error {
		renderer, err := render.New(e.cfg.Layout.Format)
		if err != nil {
			return err
		}
		path, err := renderer.Render(ctx, render.Document{Plan: p.Plan, Pages: p.Pages}, e.layout(p))
		if err != nil {
			return err
		}
		p.DocumentPath = path
		return nil
	}}
}

func saveJSON(ctx context.Context, store *storage.FileSystem, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	if err := store.Save(ctx, name, data); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}

// imageResult rebuilds the pipeline result from the project's images.
func imageResult(p *core.Project) *illustrate.Result {
	return &illustrate.Result{Images: p.Images, Reference: p.StyleReference}
}
