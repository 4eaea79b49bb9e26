package book

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CoverID is the placeholder id reserved for the cover illustration.
const CoverID = "cover"

type UnitKind string

const (
	UnitChapter UnitKind = "chapter"
	UnitPage    UnitKind = "page"
)

// UnitID names the n-th (1-based) narrative unit, e.g. "chapter3" or "page_3".
func (k UnitKind) UnitID(n int) string {
	if k == UnitPage {
		return fmt.Sprintf("page_%d", n)
	}
	return fmt.Sprintf("chapter%d", n)
}

// BookPlan is produced by planning and read by every later stage.
type BookPlan struct {
	ProjectID          string           `json:"project_id" yaml:"project_id" validate:"required"`
	Title              string           `json:"title" yaml:"title" validate:"required"`
	Genre              string           `json:"genre" yaml:"genre"`
	TargetAudience     string           `json:"target_audience" yaml:"target_audience"`
	WritingStyleGuide  string           `json:"writing_style_guide" yaml:"writing_style_guide"`
	ImageStyleGuide    string           `json:"image_style_guide" yaml:"image_style_guide"`
	CoverConcept       string           `json:"cover_concept" yaml:"cover_concept"`
	Chapters           []ChapterOutline `json:"chapters" yaml:"chapters" validate:"required,min=1,dive"`
	Theme              string           `json:"theme,omitempty" yaml:"theme,omitempty"`
	KeyElements        []string         `json:"key_elements,omitempty" yaml:"key_elements,omitempty"`
	EstimatedWordCount int              `json:"estimated_word_count,omitempty" yaml:"estimated_word_count,omitempty" validate:"gte=0"`
	Characters         []Character      `json:"characters,omitempty" yaml:"characters,omitempty" validate:"dive"`
}

type ChapterOutline struct {
	Title                   string `json:"title" yaml:"title" validate:"required"`
	Summary                 string `json:"summary" yaml:"summary"`
	ImagePlaceholdersNeeded int    `json:"image_placeholders_needed" yaml:"image_placeholders_needed" validate:"gte=0,lte=20"`
}

// TotalImages is the number of illustrations the plan asks for, cover excluded.
func (p *BookPlan) TotalImages() int {
	n := 0
	for _, ch := range p.Chapters {
		n += ch.ImagePlaceholdersNeeded
	}
	return n
}

// Themes splits the free-text theme into individual themes.
func (p *BookPlan) Themes() []string {
	var out []string
	for _, part := range strings.FieldsFunc(p.Theme, func(r rune) bool { return r == ',' || r == ';' }) {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// CharacterNames returns the roster in plan order.
func (p *BookPlan) CharacterNames() []string {
	names := make([]string, 0, len(p.Characters))
	for _, c := range p.Characters {
		names = append(names, c.Name)
	}
	return names
}

// ImagePlaceholder marks where an illustration belongs in generated text.
type ImagePlaceholder struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// ChapterContent is the accepted text of one unit. It is never regenerated.
type ChapterContent struct {
	Index             int                `json:"index"`
	UnitID            string             `json:"unit_id"`
	Title             string             `json:"title"`
	TextMarkdown      string             `json:"text_markdown"`
	ImagePlaceholders []ImagePlaceholder `json:"image_placeholders"`
	Fallback          bool               `json:"fallback,omitempty"`
}

type GeneratedImage struct {
	PlaceholderID string `json:"placeholder_id"`
	PromptUsed    string `json:"prompt_used"`
	ImagePath     string `json:"image_path,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	Attempts      int    `json:"attempts"`
}

// OK reports whether the image was produced by the generator.
func (g GeneratedImage) OK() bool {
	return g.ImagePath != "" && g.ErrorMessage == ""
}

type PageType string

const (
	PageCover PageType = "cover"
	PageImage PageType = "image"
	PageText  PageType = "text"
)

// PageRecord is one physical page handed to the renderer.
type PageRecord struct {
	Type          PageType `json:"type"`
	Number        int      `json:"number"`
	UnitIndex     int      `json:"unit_index"`
	UnitTitle     string   `json:"unit_title,omitempty"`
	Text          string   `json:"text,omitempty"`
	ImagePath     string   `json:"image_path,omitempty"`
	PlaceholderID string   `json:"placeholder_id,omitempty"`
	Missing       bool     `json:"missing,omitempty"`
	UnitStart     bool     `json:"unit_start,omitempty"`
}

// NewProjectID returns an id of the form book_YYYYMMDD_HHMMSS_abcdef.
func NewProjectID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("book_%s_%s", now.Format("20060102_150405"), hex[:6])
}
