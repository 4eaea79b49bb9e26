package core

import (
	"time"

	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/storage"
	"github.com/vampirenirmal/bookforge/internal/storyctx"
)

// Where the plan came from.
const (
	PlanFromModel       = "model"
	PlanFallbackInvalid = "fallback_malformed"
	PlanFallbackFailed  = "fallback_unavailable"
)

// Project is the state threaded through every stage of one book.
type Project struct {
	ID        string
	Request   book.Request
	StartedAt time.Time
	// Store is rooted at the project directory.
	Store *storage.FileSystem

	Plan       *book.BookPlan
	PlanSource string
	// TrendSummary and StyleGuide are optional planning inputs.
	TrendSummary string
	StyleGuide   string

	Story        *storyctx.Context
	Progress     *UnitTracker
	Contents     []book.ChapterContent
	Placeholders []book.ImagePlaceholder

	Images         []book.GeneratedImage
	StyleReference string

	Pages        []book.PageRecord
	DocumentPath string
	// Translations maps language to its summary file.
	Translations map[string]string

	CompletedStages []string
}

// NewProject creates a project rooted at store.
func NewProject(id string, req book.Request, store *storage.FileSystem) *Project {
	return &Project{
		ID:           id,
		Request:      req,
		StartedAt:    time.Now(),
		Store:        store,
		Translations: map[string]string{},
	}
}

// FallbackUnits counts units whose text was synthesized.
func (p *Project) FallbackUnits() int {
	n := 0
	for _, c := range p.Contents {
		if c.Fallback {
			n++
		}
	}
	return n
}
