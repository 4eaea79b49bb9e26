package agent

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/vampirenirmal/bookforge/internal/domain/book"
)

func TestPromptCache(t *testing.T) {
	fsys := fstest.MapFS{
		"test.tmpl":  {Data: []byte(`{{define "system"}}sys {{.Name}}{{end}}{{define "user"}}hello {{.Name}}{{end}}`)},
		"plain.tmpl": {Data: []byte(`just {{.Name}}`)},
	}
	cache := NewPromptCache(fsys)

	t.Run("loads prompt from file system", func(t *testing.T) {
		content, err := cache.LoadPrompt("test")
		if err != nil {
			t.Fatalf("LoadPrompt() error = %v", err)
		}
		if !strings.Contains(content, "hello {{.Name}}") {
			t.Errorf("LoadPrompt() = %q", content)
		}
	})

	t.Run("caches prompt content", func(t *testing.T) {
		fsys["test.tmpl"] = &fstest.MapFile{Data: []byte("Modified content")}
		content, err := cache.LoadPrompt("test.tmpl")
		if err != nil {
			t.Fatal(err)
		}
		if content == "Modified content" {
			t.Error("LoadPrompt() returned fresh content, want cached")
		}
	})

	t.Run("renders system and user blocks", func(t *testing.T) {
		system, user, err := cache.Render("test", map[string]string{"Name": "Mia"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if system != "sys Mia" || user != "hello Mia" {
			t.Errorf("Render() = (%q, %q)", system, user)
		}
	})

	t.Run("template without blocks is the user prompt", func(t *testing.T) {
		system, user, err := cache.Render("plain", map[string]string{"Name": "Leo"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if system != "" || user != "just Leo" {
			t.Errorf("Render() = (%q, %q)", system, user)
		}
	})

	t.Run("preload and stats", func(t *testing.T) {
		fresh := NewPromptCache(fsys)
		if err := fresh.Preload([]string{"test", "plain"}); err != nil {
			t.Fatalf("Preload() error = %v", err)
		}
		templates, raw := fresh.Stats()
		if templates != 2 || raw != 2 {
			t.Errorf("Stats() = (%d, %d), want (2, 2)", templates, raw)
		}
	})

	t.Run("clear cache", func(t *testing.T) {
		cache.Clear()
		templates, raw := cache.Stats()
		if templates != 0 || raw != 0 {
			t.Errorf("Stats() after Clear() = (%d, %d), want (0, 0)", templates, raw)
		}
	})

	t.Run("handles missing file", func(t *testing.T) {
		if _, err := cache.LoadPrompt("nonexistent"); err == nil {
			t.Error("LoadPrompt() with nonexistent file should return error")
		}
	})
}

func TestEmbeddedPromptsRender(t *testing.T) {
	cache := NewPromptCache(nil)
	plan := book.FallbackPlan(book.FallbackMalformed, "p")

	tests := []struct {
		name string
		data any
		want string
	}{
		{
			name: PromptPlanner,
			data: map[string]any{"Idea": "a brave snail", "Overrides": book.Overrides{Title: "Slow and Sure"}, "Schema": "{}"},
			want: "Title: Slow and Sure",
		},
		{
			name: PromptChapter,
			data: map[string]any{
				"Plan": plan, "UnitKind": "chapter", "Number": 1, "Total": 3,
				"Outline": plan.Chapters[0], "StoryContext": "Story so far",
			},
			want: "Include exactly 2 [IMAGE",
		},
		{PromptCharacter, map[string]any{"Name": "Pip"}, "named Pip"},
		{PromptTrends, map[string]any{"Topic": "dragons", "Items": []string{"Dragons are back"}}, "- Dragons are back"},
		{PromptStyle, map[string]any{"Example": "Once upon a time."}, "Once upon a time."},
		{PromptTranslate, map[string]any{"Language": "French", "Text": "Hello"}, "Translate into French"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, user, err := cache.Render(tt.name, tt.data)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if system == "" {
				t.Error("empty system prompt")
			}
			if !strings.Contains(user, tt.want) {
				t.Errorf("user prompt %q does not contain %q", user, tt.want)
			}
		})
	}
}
