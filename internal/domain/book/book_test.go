package book

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewProjectID(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	pattern := regexp.MustCompile(`^book_20260304_050607_[0-9a-f]{6}$`)

	a, b := NewProjectID(now), NewProjectID(now)
	if !pattern.MatchString(a) {
		t.Errorf("NewProjectID() = %q", a)
	}
	if a == b {
		t.Errorf("two ids in the same second collided: %q", a)
	}
}

func TestUnitID(t *testing.T) {
	tests := []struct {
		kind UnitKind
		n    int
		want string
	}{
		{UnitChapter, 1, "chapter1"},
		{UnitChapter, 12, "chapter12"},
		{UnitPage, 3, "page_3"},
		{"", 2, "chapter2"},
	}
	for _, tt := range tests {
		if got := tt.kind.UnitID(tt.n); got != tt.want {
			t.Errorf("%q.UnitID(%d) = %q, want %q", tt.kind, tt.n, got, tt.want)
		}
	}
}

func TestCharacterNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Character
		want Character
	}{
		{
			name: "defaults",
			in:   Character{Name: "  Pip "},
			want: Character{Name: "Pip", Description: FallbackCharacterDescription("Pip"), Role: RoleMain, ImageSource: SourceText},
		},
		{
			name: "keeps valid values",
			in:   Character{Name: "Mo", Description: "a heron", Role: RoleSecondary, ImageSource: SourceImage},
			want: Character{Name: "Mo", Description: "a heron", Role: RoleSecondary, ImageSource: SourceImage},
		},
		{
			name: "unknown role",
			in:   Character{Name: "Zed", Description: "a fox", Role: "villain", ImageSource: "sketch"},
			want: Character{Name: "Zed", Description: "a fox", Role: RoleMain, ImageSource: SourceText},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.in
			c.Normalize()
			if c != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", c, tt.want)
			}
		})
	}
}

func TestFallbackPlans(t *testing.T) {
	tests := []struct {
		kind     FallbackKind
		title    string
		chapters int
		images   int
	}{
		{FallbackMalformed, "The Magical Forest Adventure", 3, 7},
		{FallbackUnavailable, "The Little Dragon Who Couldn't Breathe Fire", 5, 7},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			p := FallbackPlan(tt.kind, "book_x")
			if p.Title != tt.title || p.ProjectID != "book_x" {
				t.Errorf("plan = %q (%q)", p.Title, p.ProjectID)
			}
			if len(p.Chapters) != tt.chapters || p.TotalImages() != tt.images {
				t.Errorf("got %d chapters, %d images", len(p.Chapters), p.TotalImages())
			}
			if err := p.Validate(); err != nil {
				t.Errorf("fallback plan invalid: %v", err)
			}
		})
	}
}

func TestOverridesApply(t *testing.T) {
	p := FallbackPlan(FallbackMalformed, "p")
	original := p.Genre

	Overrides{Title: "Slow and Sure", Theme: "  ", KeyElements: []string{"shell"}}.Apply(p)

	if p.Title != "Slow and Sure" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Genre != original {
		t.Errorf("empty override replaced Genre with %q", p.Genre)
	}
	if p.Theme != "Friendship and adventure" {
		t.Errorf("blank override replaced Theme with %q", p.Theme)
	}
	if len(p.KeyElements) != 1 || p.KeyElements[0] != "shell" {
		t.Errorf("KeyElements = %v", p.KeyElements)
	}
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BookPlan)
		wantErr bool
	}{
		{"valid", func(*BookPlan) {}, false},
		{"no title", func(p *BookPlan) { p.Title = "" }, true},
		{"no chapters", func(p *BookPlan) { p.Chapters = nil }, true},
		{"untitled chapter", func(p *BookPlan) { p.Chapters[0].Title = "" }, true},
		{"negative images", func(p *BookPlan) { p.Chapters[0].ImagePlaceholdersNeeded = -1 }, true},
		{"too many images", func(p *BookPlan) { p.Chapters[0].ImagePlaceholdersNeeded = 21 }, true},
		{"character without description", func(p *BookPlan) { p.Characters = []Character{{Name: "Pip"}} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FallbackPlan(FallbackMalformed, "p")
			tt.mutate(p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"minimal", Request{Idea: "a lost kite"}, false},
		{"page units", Request{Idea: "a lost kite", UnitKind: UnitPage}, false},
		{"short idea", Request{Idea: "ab"}, true},
		{"unknown unit", Request{Idea: "a lost kite", UnitKind: "scroll"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlanHelpers(t *testing.T) {
	p := &BookPlan{
		Theme:      "friendship; courage, , home",
		Characters: []Character{{Name: "Pip"}, {Name: "Mo"}},
	}
	if got := strings.Join(p.Themes(), "|"); got != "friendship|courage|home" {
		t.Errorf("Themes() = %q", got)
	}
	if got := strings.Join(p.CharacterNames(), ","); got != "Pip,Mo" {
		t.Errorf("CharacterNames() = %q", got)
	}
}

func TestPlanSchema(t *testing.T) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(PlanSchemaJSON()), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %v", doc)
	}
	for _, field := range []string{"title", "chapters", "cover_concept"} {
		if _, ok := props[field]; !ok {
			t.Errorf("schema lacks %q", field)
		}
	}
	if doc["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v", doc["additionalProperties"])
	}
}

func TestDraftToPlan(t *testing.T) {
	d := PlanDraft{Title: "T", Chapters: []ChapterOutline{{Title: "One", ImagePlaceholdersNeeded: 2}}}
	p := d.ToPlan("id")
	if p.ProjectID != "id" || p.TotalImages() != 2 {
		t.Errorf("ToPlan() = %+v", p)
	}
	if !(GeneratedImage{ImagePath: "a.png"}).OK() || (GeneratedImage{ImagePath: "a.png", ErrorMessage: "x"}).OK() {
		t.Error("GeneratedImage.OK() wrong")
	}
}
