package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/placeholder"
	"github.com/vampirenirmal/bookforge/internal/storage"
	"github.com/vampirenirmal/bookforge/internal/storyctx"
)

const summaryPreviewChars = 200

// WriteArtifacts persists everything a project has produced so far under
// its directory.
func WriteArtifacts(ctx context.Context, p *core.Project) error {
	if err := writePlanArtifacts(ctx, p); err != nil {
		return err
	}

	if p.Story != nil {
		if err := saveJSON(ctx, p.Store, storage.StoryContext, p.Story); err != nil {
			return err
		}
	}

	for _, c := range p.Contents {
		body := fmt.Sprintf("# %s\n\n%s\n", c.Title, c.TextMarkdown)
		if err := p.Store.Save(ctx, storage.ChapterFile(c.Index), []byte(body)); err != nil {
			return fmt.Errorf("saving unit %s: %w", c.UnitID, err)
		}
	}

	if err := saveJSON(ctx, p.Store, storage.ContentsJSON, p.Contents); err != nil {
		return err
	}
	if err := saveJSON(ctx, p.Store, storage.ImagesJSON, imageResult(p)); err != nil {
		return err
	}
	if err := p.Store.Save(ctx, storage.ImageLog, imageResult(p).Log()); err != nil {
		return fmt.Errorf("saving image log: %w", err)
	}
	if err := p.Store.Save(ctx, storage.StorySummary, StorySummary(p)); err != nil {
		return fmt.Errorf("saving story summary: %w", err)
	}
	return saveJSON(ctx, p.Store, storage.PagesJSON, p.Pages)
}

func writePlanArtifacts(ctx context.Context, p *core.Project) error {
	if p.Plan == nil {
		return fmt.Errorf("%w: project %s has no plan", core.ErrInvalidInput, p.ID)
	}

	data, err := yaml.Marshal(p.Plan)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	if err := p.Store.Save(ctx, storage.PlanYAML, data); err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}
	if err := saveJSON(ctx, p.Store, storage.PlanJSON, p.Plan); err != nil {
		return err
	}
	if err := saveJSON(ctx, p.Store, storage.RequestJSON, p.Request); err != nil {
		return err
	}

	idea := p.Request.Idea
	if idea == "" {
		idea = p.Plan.Title
	}
	return p.Store.Save(ctx, storage.MetadataFile, storage.ProjectMetadata(p.ID, idea, p.StartedAt))
}

// StorySummary is the human-readable overview of a written book.
func StorySummary(p *core.Project) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Plan.Title)
	fmt.Fprintf(&b, "Genre: %s\n", p.Plan.Genre)
	fmt.Fprintf(&b, "Audience: %s\n", p.Plan.TargetAudience)
	fmt.Fprintf(&b, "Plan source: %s\n", p.PlanSource)

	if len(p.Plan.Characters) > 0 {
		b.WriteString("\nCharacters:\n")
		for _, c := range p.Plan.Characters {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.Name, c.Role, c.Description)
		}
	}

	b.WriteString("\nChapters:\n")
	for _, c := range p.Contents {
		marker := ""
		if c.Fallback {
			marker = " [fallback]"
		}
		fmt.Fprintf(&b, "%d. %s%s (%d image placeholders)\n", c.Index+1, c.Title, marker, len(c.ImagePlaceholders))
		fmt.Fprintf(&b, "   %s\n", preview(placeholder.Strip(c.TextMarkdown), summaryPreviewChars))
	}

	fmt.Fprintf(&b, "\nTotal image placeholders: %d\n", len(p.Placeholders))
	if p.Story != nil {
		b.WriteString("\n")
		b.WriteString(p.Story.Summary())
	}
	return []byte(b.String())
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// LoadArtifacts restores the plan, units and images of a saved project.
func LoadArtifacts(ctx context.Context, p *core.Project) error {
	if err := loadPlan(ctx, p); err != nil {
		return err
	}
	if err := loadContents(ctx, p); err != nil {
		return err
	}
	if err := loadImages(ctx, p); err != nil {
		return err
	}
	return loadStory(ctx, p)
}

// restoreArtifacts loads whatever an interrupted run saved. Only the plan
// is required.
func restoreArtifacts(ctx context.Context, p *core.Project) error {
	if err := loadPlan(ctx, p); err != nil {
		return err
	}
	if p.Store.Exists(ctx, storage.ContentsJSON) {
		if err := loadContents(ctx, p); err != nil {
			return err
		}
	}
	if p.Store.Exists(ctx, storage.ImagesJSON) {
		if err := loadImages(ctx, p); err != nil {
			return err
		}
	}
	if p.Store.Exists(ctx, storage.PagesJSON) {
		if err := loadJSON(ctx, p.Store, storage.PagesJSON, &p.Pages); err != nil {
			return err
		}
	}
	if lang := p.Request.Translate; lang != "" {
		if name := storage.TranslationSummaryFile(lang); p.Store.Exists(ctx, name) {
			p.Translations[lang] = name
		}
	}
	return loadStory(ctx, p)
}

// loadPlan restores the plan and, when it was saved, the original request.
func loadPlan(ctx context.Context, p *core.Project) error {
	var plan book.BookPlan
	if err := loadJSON(ctx, p.Store, storage.PlanJSON, &plan); err != nil {
		return err
	}
	p.Plan = &plan

	if p.Store.Exists(ctx, storage.RequestJSON) {
		return loadJSON(ctx, p.Store, storage.RequestJSON, &p.Request)
	}
	return nil
}

func loadContents(ctx context.Context, p *core.Project) error {
	if err := loadJSON(ctx, p.Store, storage.ContentsJSON, &p.Contents); err != nil {
		return err
	}
	units := make([][]book.ImagePlaceholder, len(p.Contents))
	for i, c := range p.Contents {
		units[i] = c.ImagePlaceholders
	}
	p.Placeholders = placeholder.Flatten(units)
	return nil
}

func loadImages(ctx context.Context, p *core.Project) error {
	var images struct {
		Images    []book.GeneratedImage `json:"images"`
		Reference string                `json:"reference"`
	}
	if err := loadJSON(ctx, p.Store, storage.ImagesJSON, &images); err != nil {
		return err
	}
	p.Images, p.StyleReference = images.Images, images.Reference
	return nil
}

func loadStory(ctx context.Context, p *core.Project) error {
	if !p.Store.Exists(ctx, storage.StoryContext) {
		return nil
	}
	story := storyctx.New()
	if err := loadJSON(ctx, p.Store, storage.StoryContext, story); err != nil {
		return err
	}
	p.Story = story
	return nil
}

func loadJSON(ctx context.Context, store *storage.FileSystem, name string, v any) error {
	data, err := store.Load(ctx, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s missing from %s", core.ErrNotFound, name, store.BaseDir())
		}
		return fmt.Errorf("loading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}
