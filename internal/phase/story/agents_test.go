package story

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/phase"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCharacterProcessor(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "pip.png")
	if err := os.WriteFile(imgPath, pngBytes(t, 40, 30), 0o644); err != nil {
		t.Fatal(err)
	}

	mock := agent.NewMockClient()
	processor := NewCharacterProcessor(mock, phase.WithRetryConfig(phase.NoRetry))

	chars, err := processor.Process(context.Background(), []book.CharacterInput{
		{Name: " Mia ", Description: "a tall girl", Role: "villain"},
		{Name: ""},
		{Name: "Pip", ImagePath: imgPath, Role: book.RoleSecondary},
		{Name: "mia", Description: "duplicate"},
		{Name: "Bo", ImageData: []byte("definitely not an image")},
		{Name: "Kit", Description: "a kitten with a bell", ImageData: pngBytes(t, 10, 10)},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := []book.Character{
		{Name: "Mia", Description: "a tall girl", Role: book.RoleMain, ImageSource: book.SourceText},
		{Name: "Pip", Description: "A small round creature with soft blue fur, large amber eyes and a striped red scarf.", Role: book.RoleSecondary, ImageSource: book.SourceImage},
		{Name: "Bo", Description: book.FallbackCharacterDescription("Bo"), Role: book.RoleMain, ImageSource: book.SourceImage},
		{Name: "Kit", Description: "a kitten with a bell", Role: book.RoleMain, ImageSource: book.SourceImage},
	}
	if len(chars) != len(want) {
		t.Fatalf("got %d characters, want %d: %+v", len(chars), len(want), chars)
	}
	for i := range want {
		if chars[i] != want[i] {
			t.Errorf("character %d = %+v, want %+v", i, chars[i], want[i])
		}
	}

	describes := 0
	for _, c := range mock.Calls() {
		if strings.Contains(c.Prompt, "shown in this image") {
			describes++
		}
	}
	if describes != 2 {
		t.Errorf("image analysed %d times, want 2", describes)
	}
}

func TestCharacterProcessorWithoutAnalyzer(t *testing.T) {
	chars, err := NewCharacterProcessor(nil).Process(context.Background(), []book.CharacterInput{
		{Name: "Pip", ImageData: pngBytes(t, 8, 8)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if chars[0].Description != book.FallbackCharacterDescription("Pip") {
		t.Errorf("description = %q", chars[0].Description)
	}
}

func TestDownscaleJPEG(t *testing.T) {
	out, err := DownscaleJPEG(pngBytes(t, 2000, 1000), 768)
	if err != nil {
		t.Fatalf("DownscaleJPEG() error = %v", err)
	}
	kind, _ := filetype.Match(out)
	if kind.MIME.Value != "image/jpeg" {
		t.Errorf("output type = %s, want image/jpeg", kind.MIME.Value)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 768 || b.Dy() != 384 {
		t.Errorf("size = %dx%d, want 768x384", b.Dx(), b.Dy())
	}

	if _, err := DownscaleJPEG([]byte("plain text"), 768); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("non-image error = %v, want ErrInvalidInput", err)
	}
}

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Books</title>
<item><title>Dragon picture books soar this spring</title><description>dragons</description></item>
<item><title>Cookbooks for busy parents</title></item>
<item><title>Friendly dragon stories top the charts</title></item>
<item><title>Garden dragon crafts for kids</title></item>
</channel></rss>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTrendFinder(t *testing.T) {
	srv := feedServer(t)
	feeds := []string{srv.URL + "/broken", srv.URL + "/feed"}

	t.Run("model report", func(t *testing.T) {
		mock := agent.NewMockClient()
		report, err := NewTrendFinder(mock, feeds, WithTrendHTTPClient(srv.Client())).Find(context.Background(), "dragon", "")
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}
		if report.Fallback || !strings.Contains(report.Summary, "friendship") {
			t.Errorf("report = %+v", report)
		}

		prompt := mock.Calls()[0].Prompt
		if !strings.Contains(prompt, "- Friendly dragon stories top the charts") || strings.Contains(prompt, "Cookbooks") {
			t.Errorf("headlines not filtered by topic: %q", prompt)
		}
	})

	t.Run("keyword fallback", func(t *testing.T) {
		mock := agent.NewMockClient().OnError("Recent headlines:", errors.New("down"))
		report, err := NewTrendFinder(mock, feeds, WithTrendMaxItems(10)).Find(context.Background(), "dragon", "")
		if err != nil {
			t.Fatal(err)
		}
		if !report.Fallback || len(report.Keywords) == 0 || report.Keywords[0] != "dragon" {
			t.Errorf("report = %+v", report)
		}
	})

	t.Run("no feeds", func(t *testing.T) {
		report, err := NewTrendFinder(agent.NewMockClient(), nil).Find(context.Background(), "dragon", "")
		if err != nil || !report.Fallback || report.String() != "" {
			t.Errorf("Find() = %+v, %v", report, err)
		}
	})
}

func TestKeywordReport(t *testing.T) {
	report := KeywordReport([]string{"Magic forest tales", "Forest friends", "The forest and the magic owl"}, 2)
	if got := strings.Join(report.Keywords, ","); got != "forest,magic" {
		t.Errorf("keywords = %s, want forest,magic", got)
	}
	if !strings.HasPrefix(report.String(), "Frequent headline keywords: forest, magic.") {
		t.Errorf("String() = %q", report.String())
	}
}

func TestStyleImitator(t *testing.T) {
	ctx := context.Background()

	profile, err := NewStyleImitator(agent.NewMockClient()).Analyze(ctx, "Once upon a time, a fox sat by the river.")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if profile.WritingGuide() != "Warm third-person narration in short, simple sentences." {
		t.Errorf("WritingGuide() = %q", profile.WritingGuide())
	}

	if _, err := NewStyleImitator(agent.NewMockClient()).Analyze(ctx, "   "); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("empty example error = %v", err)
	}

	empty := agent.NewMockClient().On("Analyse the style", `{"tone": ""}`)
	if _, err := NewStyleImitator(empty, phase.WithRetryConfig(phase.NoRetry)).Analyze(ctx, "text"); !errors.Is(err, core.ErrMalformedResponse) {
		t.Errorf("empty analysis error = %v", err)
	}

	composed := StyleProfile{Tone: "playful", NarrativeVoice: "first person"}
	if got := composed.WritingGuide(); got != "Tone: playful. Narrative voice: first person" {
		t.Errorf("composed guide = %q", got)
	}
}

func TestTranslator(t *testing.T) {
	contents := []book.ChapterContent{
		{UnitID: "chapter1", Title: "One", TextMarkdown: "Hello. [IMAGE: chapter1_image1]"},
		{UnitID: "chapter2", Title: "Two", TextMarkdown: "Broken chapter."},
		{UnitID: "chapter3", Title: "Three", TextMarkdown: "Bye. [IMAGE: chapter3_image1]"},
	}
	mock := agent.NewMockClient().
		OnError("Broken chapter.", errors.New("quota")).
		On("Bye.", "Tschüss.")

	tr := NewTranslator(mock, 2, time.Second, phase.WithRetryConfig(phase.NoRetry))
	out, err := tr.Translate(context.Background(), "German", contents)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d translations, want 3", len(out))
	}

	if out[0].Err != nil || out[0].Text != "Hello. [IMAGE: chapter1_image1]" {
		t.Errorf("unit 1 = %+v", out[0])
	}
	if out[1].Err == nil || out[1].Text != "Broken chapter." {
		t.Errorf("unit 2 = %+v, want original kept with error", out[1])
	}
	if out[2].Err == nil || out[2].Text != contents[2].TextMarkdown {
		t.Errorf("unit 3 = %+v, want marker loss rejected", out[2])
	}

	summary := string(TranslationSummary("German", "Book", out))
	for _, want := range []string{"Translation Summary (German)", "Chapter 1: One (translated)", "Chapter 2: Two (original kept: quota)"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary lacks %q", want)
		}
	}
}
