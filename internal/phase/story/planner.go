package story

import (
	"context"
	"strings"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/phase"
)

// Planner turns a book idea into a BookPlan. It always produces a plan:
// when the model fails or answers with something unusable, a built-in plan
// is used instead.
type Planner struct {
	phase.BaseStage
	agent *agent.Agent
}

func NewPlanner(client agent.AIClient, opts ...phase.BaseStageOption) *Planner {
	base := phase.NewBaseStage("planner", opts...)
	return &Planner{
		BaseStage: base,
		agent:     agent.New(client, agent.PromptPlanner).WithLogger(base.Logger()),
	}
}

// PlanInput carries the optional inputs folded into the planning prompt.
type PlanInput struct {
	Request book.Request
	Trends  string
}

// Plan returns the plan and where it came from (one of the core.Plan*
// constants). The error is non-nil only when ctx is done.
func (p *Planner) Plan(ctx context.Context, projectID string, in PlanInput) (*book.BookPlan, string, error) {
	if err := p.ValidateContext(ctx); err != nil {
		return nil, "", err
	}

	var response string
	err := p.Retry(ctx, "plan", func(ctx context.Context) error {
		var err error
		response, err = p.agent.ExecuteStructured(ctx, map[string]any{
			"Idea":       in.Request.Idea,
			"Overrides":  in.Request.Overrides,
			"Characters": in.Request.Characters,
			"Trends":     in.Trends,
			"Schema":     book.PlanSchemaJSON(),
		}, agent.Schema{
			Name:        "book_plan",
			Description: "A complete plan for an illustrated book",
			Definition:  book.PlanSchema(),
		})
		return err
	})

	plan, source := p.decide(ctx, projectID, in.Request.Overrides, response, err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, "", ctxErr
	}

	in.Request.Overrides.Apply(plan)
	p.Logger().Info("book planned",
		"project", projectID,
		"title", plan.Title,
		"units", len(plan.Chapters),
		"images", plan.TotalImages(),
		"source", source)
	return plan, source, nil
}

func (p *Planner) decide(ctx context.Context, projectID string, overrides book.Overrides, response string, callErr error) (*book.BookPlan, string) {
	if callErr != nil {
		if ctx.Err() == nil {
			p.Logger().Warn("planning call failed, using fallback plan", "project", projectID, "error", callErr)
		}
		return book.FallbackPlan(book.FallbackUnavailable, projectID), core.PlanFallbackFailed
	}

	var draft book.PlanDraft
	if err := phase.DecodeJSON(response, &draft); err != nil {
		p.Logger().Warn("plan response unparsable, using fallback plan", "project", projectID, "error", err)
		return book.FallbackPlan(book.FallbackMalformed, projectID), core.PlanFallbackInvalid
	}

	plan := draft.ToPlan(projectID)
	for i := range plan.Chapters {
		plan.Chapters[i].Title = strings.TrimSpace(plan.Chapters[i].Title)
	}
	overrides.Apply(plan)
	if err := plan.Validate(); err != nil {
		p.Logger().Warn("plan response invalid, using fallback plan", "project", projectID, "error", core.ValidationFailure(StagePlan, err))
		return book.FallbackPlan(book.FallbackMalformed, projectID), core.PlanFallbackInvalid
	}
	return plan, core.PlanFromModel
}
