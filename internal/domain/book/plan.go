package book

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Overrides are caller-supplied plan fields. Non-empty values always win over
// whatever the planner produced.
type Overrides struct {
	Title             string   `json:"title,omitempty" yaml:"title,omitempty"`
	Genre             string   `json:"genre,omitempty" yaml:"genre,omitempty"`
	TargetAudience    string   `json:"target_audience,omitempty" yaml:"target_audience,omitempty"`
	WritingStyleGuide string   `json:"writing_style_guide,omitempty" yaml:"writing_style_guide,omitempty"`
	ImageStyleGuide   string   `json:"image_style_guide,omitempty" yaml:"image_style_guide,omitempty"`
	CoverConcept      string   `json:"cover_concept,omitempty" yaml:"cover_concept,omitempty"`
	Theme             string   `json:"theme,omitempty" yaml:"theme,omitempty"`
	KeyElements       []string `json:"key_elements,omitempty" yaml:"key_elements,omitempty"`
}

// Apply copies every non-empty override onto the plan.
func (o Overrides) Apply(p *BookPlan) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&p.Title, o.Title)
	set(&p.Genre, o.Genre)
	set(&p.TargetAudience, o.TargetAudience)
	set(&p.WritingStyleGuide, o.WritingStyleGuide)
	set(&p.ImageStyleGuide, o.ImageStyleGuide)
	set(&p.CoverConcept, o.CoverConcept)
	set(&p.Theme, o.Theme)
	if len(o.KeyElements) > 0 {
		p.KeyElements = append([]string(nil), o.KeyElements...)
	}
}

// PlanDraft is the shape requested from the language model.
type PlanDraft struct {
	Title              string           `json:"title" jsonschema_description:"Book title"`
	Genre              string           `json:"genre"`
	TargetAudience     string           `json:"target_audience" jsonschema_description:"Reader age group, e.g. Ages 6-10"`
	WritingStyleGuide  string           `json:"writing_style_guide"`
	ImageStyleGuide    string           `json:"image_style_guide"`
	CoverConcept       string           `json:"cover_concept"`
	Chapters           []ChapterOutline `json:"chapters" jsonschema:"minItems=1"`
	Theme              string           `json:"theme"`
	KeyElements        []string         `json:"key_elements"`
	EstimatedWordCount int              `json:"estimated_word_count"`
}

// ToPlan converts a draft into a plan carrying the given project id.
func (d PlanDraft) ToPlan(projectID string) *BookPlan {
	return &BookPlan{
		ProjectID:          projectID,
		Title:              d.Title,
		Genre:              d.Genre,
		TargetAudience:     d.TargetAudience,
		WritingStyleGuide:  d.WritingStyleGuide,
		ImageStyleGuide:    d.ImageStyleGuide,
		CoverConcept:       d.CoverConcept,
		Chapters:           d.Chapters,
		Theme:              d.Theme,
		KeyElements:        d.KeyElements,
		EstimatedWordCount: d.EstimatedWordCount,
	}
}

var (
	schemaOnce sync.Once
	planSchema *jsonschema.Schema
)

// PlanSchema returns the JSON schema of PlanDraft.
func PlanSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		r := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		planSchema = r.Reflect(PlanDraft{})
	})
	return planSchema
}

// PlanSchemaJSON renders PlanSchema for embedding in prompts.
func PlanSchemaJSON() string {
	data, err := json.MarshalIndent(PlanSchema(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

var validate = validator.New()

// Validate checks struct tags on the plan and its chapters.
func (p *BookPlan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid book plan: %w", err)
	}
	return nil
}

// FallbackKind selects one of the built-in plans.
type FallbackKind int

const (
	// FallbackMalformed is used when the model answered but the plan could not be parsed.
	FallbackMalformed FallbackKind = iota
	// FallbackUnavailable is used when the model call itself failed.
	FallbackUnavailable
)

// FallbackPlan returns a complete built-in plan so the pipeline can always proceed.
func FallbackPlan(kind FallbackKind, projectID string) *BookPlan {
	if kind == FallbackUnavailable {
		return &BookPlan{
			ProjectID:         projectID,
			Title:             "The Little Dragon Who Couldn't Breathe Fire",
			Genre:             "Children's Picture Book",
			TargetAudience:    "Ages 3-6",
			WritingStyleGuide: "Simple, repetitive, and rhythmic language. Focus on themes of friendship, perseverance, and self-acceptance. Short sentences, easy vocabulary. Encouraging and warm tone.",
			ImageStyleGuide:   "Soft, watercolor-style illustrations. Cute and expressive characters. Pastel color palette. Full-page spreads with minimal text overlay where appropriate.",
			CoverConcept:      "A small, sad-looking green dragon trying to puff out a tiny wisp of smoke, with friendly animal friends looking on encouragingly. Sunny meadow background.",
			Chapters: []ChapterOutline{
				{Title: "Sparky's Big Problem", Summary: "Introduce Sparky, a little dragon who can't breathe fire like his friends. He feels sad and left out.", ImagePlaceholdersNeeded: 1},
				{Title: "Trying Everything", Summary: "Sparky tries different funny ways to make fire (eating spicy peppers, jumping up and down) but nothing works.", ImagePlaceholdersNeeded: 2},
				{Title: "A Kind Friend", Summary: "Sparky meets a wise old owl who tells him everyone has unique talents.", ImagePlaceholdersNeeded: 1},
				{Title: "Discovering a New Talent", Summary: "Sparky discovers he can blow beautiful, sparkling bubbles instead of fire, which delight his friends.", ImagePlaceholdersNeeded: 2},
				{Title: "The Bubble Festival", Summary: "Sparky becomes the star of the annual forest festival with his amazing bubble show, learning to embrace his uniqueness.", ImagePlaceholdersNeeded: 1},
			},
			Theme:       "Self-acceptance and celebrating differences",
			KeyElements: []string{"Cute dragon character", "Supportive friends", "Problem-solving", "Happy resolution"},
		}
	}
	return &BookPlan{
		ProjectID:         projectID,
		Title:             "The Magical Forest Adventure",
		Genre:             "Children's Fantasy",
		TargetAudience:    "Ages 6-10",
		WritingStyleGuide: "Simple, engaging language with vivid descriptions. Positive and encouraging tone.",
		ImageStyleGuide:   "Colorful, whimsical illustrations. Friendly characters. Bright and inviting scenes.",
		CoverConcept:      "A group of diverse children and friendly animals at the entrance of a vibrant, sunlit magical forest.",
		Chapters: []ChapterOutline{
			{Title: "The Mysterious Map", Summary: "Children find a mysterious map in their grandmother's attic.", ImagePlaceholdersNeeded: 2},
			{Title: "Journey into the Whispering Woods", Summary: "They follow the map into a local woods that transforms into a magical forest.", ImagePlaceholdersNeeded: 3},
			{Title: "Meeting the Forest Guardians", Summary: "The children meet talking animals who are guardians of the forest.", ImagePlaceholdersNeeded: 2},
		},
		Theme:       "Friendship and adventure",
		KeyElements: []string{"Magical transformation", "Animal friends", "Discovery and wonder"},
	}
}
