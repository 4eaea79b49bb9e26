package story

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/phase"
)

func TestPlanner(t *testing.T) {
	tests := []struct {
		name       string
		client     func() *agent.MockClient
		overrides  book.Overrides
		wantSource string
		wantTitle  string
		wantUnits  int
	}{
		{
			name:       "model plan",
			client:     agent.NewMockClient,
			wantSource: core.PlanFromModel,
			wantTitle:  "A Tale of a lost kite",
			wantUnits:  2,
		},
		{
			name: "unparsable plan uses the malformed fallback",
			client: func() *agent.MockClient {
				return agent.NewMockClient().On("Book idea:", `{"title": 42}`)
			},
			wantSource: core.PlanFallbackInvalid,
			wantTitle:  "The Magical Forest Adventure",
			wantUnits:  3,
		},
		{
			name: "plan without chapters uses the malformed fallback",
			client: func() *agent.MockClient {
				return agent.NewMockClient().On("Book idea:", `{"title": "Empty", "chapters": []}`)
			},
			wantSource: core.PlanFallbackInvalid,
			wantTitle:  "The Magical Forest Adventure",
			wantUnits:  3,
		},
		{
			name: "failed call uses the unavailable fallback",
			client: func() *agent.MockClient {
				return agent.NewMockClient().OnError("Book idea:", errors.New("connection refused"))
			},
			wantSource: core.PlanFallbackFailed,
			wantTitle:  "The Little Dragon Who Couldn't Breathe Fire",
			wantUnits:  5,
		},
		{
			name: "overrides win over the fallback",
			client: func() *agent.MockClient {
				return agent.NewMockClient().OnError("Book idea:", errors.New("down"))
			},
			overrides:  book.Overrides{Title: "Kite Day", Genre: "Poetry"},
			wantSource: core.PlanFallbackFailed,
			wantTitle:  "Kite Day",
			wantUnits:  5,
		},
		{
			name:       "overrides win over the model",
			client:     agent.NewMockClient,
			overrides:  book.Overrides{Title: "Kite Day", ImageStyleGuide: "pencil"},
			wantSource: core.PlanFromModel,
			wantTitle:  "Kite Day",
			wantUnits:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := NewPlanner(tt.client(), phase.WithRetryConfig(phase.NoRetry))
			req := book.Request{Idea: "a lost kite", Overrides: tt.overrides}

			plan, source, err := planner.Plan(context.Background(), "book_1", PlanInput{Request: req})
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
			if plan.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", plan.Title, tt.wantTitle)
			}
			if len(plan.Chapters) != tt.wantUnits {
				t.Errorf("got %d units, want %d", len(plan.Chapters), tt.wantUnits)
			}
			if plan.ProjectID != "book_1" {
				t.Errorf("project id = %q", plan.ProjectID)
			}
			if tt.overrides.Genre != "" && plan.Genre != tt.overrides.Genre {
				t.Errorf("genre = %q, want override %q", plan.Genre, tt.overrides.Genre)
			}
			if tt.overrides.ImageStyleGuide != "" && plan.ImageStyleGuide != tt.overrides.ImageStyleGuide {
				t.Errorf("image style = %q, want override", plan.ImageStyleGuide)
			}
			if err := plan.Validate(); err != nil {
				t.Errorf("plan does not validate: %v", err)
			}
		})
	}
}

func TestPlannerPromptCarriesInputs(t *testing.T) {
	mock := agent.NewMockClient()
	planner := NewPlanner(mock, phase.WithRetryConfig(phase.NoRetry))
	req := book.Request{
		Idea:       "a lost kite",
		Characters: []book.CharacterInput{{Name: "Pip", Description: "a small fox", Role: book.RoleMain}},
	}

	if _, _, err := planner.Plan(context.Background(), "p", PlanInput{Request: req, Trends: "Kites are everywhere"}); err != nil {
		t.Fatal(err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	for _, want := range []string{"Book idea: a lost kite", "- Pip (main): a small fox", "Kites are everywhere", `"chapters"`} {
		if !strings.Contains(calls[0].Prompt, want) {
			t.Errorf("prompt lacks %q", want)
		}
	}
}

func TestPlannerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewPlanner(agent.NewMockClient()).Plan(ctx, "p", PlanInput{Request: book.Request{Idea: "x y z"}}); !errors.Is(err, context.Canceled) {
		t.Errorf("Plan() error = %v, want context.Canceled", err)
	}
}
