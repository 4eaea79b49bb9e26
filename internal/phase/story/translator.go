package story

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/phase"
	"github.com/vampirenirmal/bookforge/internal/placeholder"
)

// Translation is one translated unit. When Err is set, Text holds the
// original.
type Translation struct {
	UnitID string
	Title  string
	Text   string
	Err    error
}

// Translator translates accepted units concurrently.
type Translator struct {
	phase.BaseStage
	agent   *agent.Agent
	workers int
	timeout time.Duration
}

func NewTranslator(client agent.AIClient, workers int, timeout time.Duration, opts ...phase.BaseStageOption) *Translator {
	base := phase.NewBaseStage("translator", opts...)
	return &Translator{
		BaseStage: base,
		agent:     agent.New(client, agent.PromptTranslate).WithLogger(base.Logger()),
		workers:   max(workers, 1),
		timeout:   timeout,
	}
}

// Translate returns one Translation per unit, in unit order. Only
// cancellation of ctx is an error.
func (t *Translator) Translate(ctx context.Context, language string, contents []book.ChapterContent) ([]Translation, error) {
	pool := phase.NewWorkerPool[book.ChapterContent, string](
		phase.WithWorkers(t.workers),
		phase.WithTimeout(t.timeout),
		phase.WithPoolLogger(t.Logger()),
	)

	outcomes, err := pool.Process(ctx, contents, func(ctx context.Context, _ int, c book.ChapterContent) (string, error) {
		var out string
		err := t.Retry(ctx, "translate_"+c.UnitID, func(ctx context.Context) error {
			var err error
			out, err = t.agent.Execute(ctx, map[string]any{"Language": language, "Text": c.TextMarkdown})
			return err
		})
		if err != nil {
			return "", err
		}
		if lost := missingMarkers(c.TextMarkdown, out); len(lost) > 0 {
			return "", fmt.Errorf("translation dropped image markers %v", lost)
		}
		return strings.TrimSpace(out), nil
	})
	if err != nil {
		return nil, err
	}

	translations := make([]Translation, len(contents))
	failed := 0
	for i, o := range outcomes {
		tr := Translation{UnitID: contents[i].UnitID, Title: contents[i].Title, Text: o.Value, Err: o.Err}
		if o.Err != nil {
			failed++
			tr.Text = contents[i].TextMarkdown
			t.Logger().Warn("translation failed, keeping original", "unit", tr.UnitID, "language", language, "error", o.Err)
		}
		translations[i] = tr
	}
	t.Logger().Info("translation finished", "language", language, "units", len(contents), "failed", failed)
	return translations, nil
}

func missingMarkers(original, translated string) []string {
	have := map[string]bool{}
	for _, id := range placeholder.References(translated) {
		have[id] = true
	}
	var lost []string
	for _, id := range placeholder.References(original) {
		if !have[id] {
			lost = append(lost, id)
		}
	}
	return lost
}

// TranslationSummary renders the per-language summary artifact.
func TranslationSummary(language, title string, translations []Translation) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Translation Summary (%s)\n", language)
	fmt.Fprintf(&b, "Book: %s\n\n", title)
	for i, tr := range translations {
		status := "translated"
		if tr.Err != nil {
			status = "original kept: " + tr.Err.Error()
		}
		fmt.Fprintf(&b, "Chapter %d: %s (%s)\n\n%s\n\n", i+1, tr.Title, status, tr.Text)
	}
	return []byte(b.String())
}
