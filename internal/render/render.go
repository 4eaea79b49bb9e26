// Package render turns composed pages into a finished document.
package render

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/storage"
)

// Document is everything a renderer needs.
type Document struct {
	Plan  *book.BookPlan
	Pages []book.PageRecord
}

// Layout controls page geometry and output placement.
type Layout struct {
	OutputDir         string
	PageSize          string
	MarginCM          float64
	CoverTitleOverlay bool
	// FileStem overrides the name derived from the title.
	FileStem string
}

const DefaultMarginCM = 2.54

// Renderer writes a document and returns its path. Any error is fatal to
// the run and wraps core.ErrRenderFailed.
type Renderer interface {
	Render(ctx context.Context, doc Document, layout Layout) (string, error)
	Format() string
}

// New returns the renderer for format, "pdf" or "html".
func New(format string) (Renderer, error) {
	switch format {
	case "pdf", "":
		return NewPDFRenderer(), nil
	case "html":
		return NewHTMLRenderer(), nil
	default:
		return nil, fmt.Errorf("%w: unknown document format %q", core.ErrInvalidInput, format)
	}
}

func outputPath(doc Document, layout Layout, ext string) (string, error) {
	if layout.OutputDir == "" {
		return "", fmt.Errorf("%w: no output directory", core.ErrRenderFailed)
	}
	if doc.Plan == nil {
		return "", fmt.Errorf("%w: document has no plan", core.ErrRenderFailed)
	}
	stem := layout.FileStem
	if stem == "" {
		stem = storage.DocumentStem(doc.Plan.Title)
	}
	return filepath.Join(layout.OutputDir, stem+"."+ext), nil
}

func failed(format string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrRenderFailed, format, err)
}
