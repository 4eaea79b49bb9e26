package render

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
)

func fixture(t *testing.T) (Document, string) {
	t.Helper()
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "images", "chapter1_image1.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(imgPath), 0o755))
	require.NoError(t, imaging.Save(imaging.New(40, 30, color.NRGBA{R: 200, A: 255}), imgPath))

	doc := Document{
		Plan: &book.BookPlan{Title: "The Red Door"},
		Pages: []book.PageRecord{
			{Type: book.PageCover, PlaceholderID: "cover", ImagePath: imgPath},
			{Type: book.PageText, Number: 1, UnitTitle: "Setting Out", UnitStart: true, Text: "# Morning\n\nIntro with *emphasis*."},
			{Type: book.PageImage, Number: 2, UnitTitle: "Setting Out", PlaceholderID: "chapter1_image1", ImagePath: imgPath},
			{Type: book.PageImage, Number: 3, UnitTitle: "Setting Out", PlaceholderID: "chapter1_image2", Missing: true, Text: "[Image unavailable]"},
		},
	}
	return doc, dir
}

func TestHTMLRenderer(t *testing.T) {
	doc, dir := fixture(t)

	path, err := NewHTMLRenderer().Render(context.Background(), doc, Layout{OutputDir: dir, MarginCM: 2.54, CoverTitleOverlay: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "the_red_door_book.html"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "<h1>The Red Door</h1>")
	assert.Contains(t, html, "<h2>Setting Out</h2>")
	assert.Contains(t, html, "<em>emphasis</em>")
	assert.Contains(t, html, `src="images/chapter1_image1.png"`)
	assert.Contains(t, html, "[Image unavailable]")
	assert.Equal(t, 4, strings.Count(html, "<section"))
}

func TestPDFRenderer(t *testing.T) {
	doc, dir := fixture(t)

	path, err := NewPDFRenderer().Render(context.Background(), doc, Layout{OutputDir: dir, PageSize: "A5", FileStem: "custom"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "custom.pdf"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))
}

func TestPDFRendererSkipsUnreadableImage(t *testing.T) {
	doc, dir := fixture(t)
	bogus := filepath.Join(dir, "bogus.png")
	require.NoError(t, os.WriteFile(bogus, []byte("not an image"), 0o644))
	doc.Pages[2].ImagePath = bogus

	_, err := NewPDFRenderer().Render(context.Background(), doc, Layout{OutputDir: dir})
	assert.NoError(t, err)
}

func TestRenderFailuresAreFatal(t *testing.T) {
	doc, dir := fixture(t)
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	for _, format := range []string{"pdf", "html"} {
		t.Run(format, func(t *testing.T) {
			r, err := New(format)
			require.NoError(t, err)
			assert.Equal(t, format, r.Format())

			_, err = r.Render(context.Background(), doc, Layout{OutputDir: filepath.Join(blocker, "out")})
			assert.ErrorIs(t, err, core.ErrRenderFailed)
			assert.True(t, core.IsFatal(err))
		})
	}

	_, err := NewHTMLRenderer().Render(context.Background(), Document{}, Layout{OutputDir: dir})
	assert.ErrorIs(t, err, core.ErrRenderFailed)

	_, err = New("docx")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBlocks(t *testing.T) {
	w := &pdfWriter{md: NewPDFRenderer().md}
	got := w.blocks("# Title\n\nFirst line\nsecond line.\n\n- item")
	require.Len(t, got, 3)
	assert.Equal(t, textBlock{heading: true, text: "Title"}, got[0])
	assert.Equal(t, "First line second line.", got[1].text)
	assert.Equal(t, "item", got[2].text)
}
