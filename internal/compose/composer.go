// Package compose lays resolved unit text and illustrations out as pages.
package compose

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/placeholder"
)

// DefaultMissingText stands in for an illustration that could not be produced.
const DefaultMissingText = "[Image unavailable]"

type Mode string

const (
	// ModeSplit gives every illustration its own page between the prose
	// around it.
	ModeSplit Mode = "split"
	// ModeAlternate puts a unit's first illustration before its prose and
	// the rest after it.
	ModeAlternate Mode = "alternate"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

type Composer struct {
	mode        Mode
	numberCover bool
	missingText string
	logger      *slog.Logger
}

type Option func(*Composer)

func WithMode(m Mode) Option {
	return func(c *Composer) {
		if m == ModeSplit || m == ModeAlternate {
			c.mode = m
		}
	}
}

// WithNumberCover makes the cover page 1.
func WithNumberCover(on bool) Option {
	return func(c *Composer) { c.numberCover = on }
}

func WithMissingText(s string) Option {
	return func(c *Composer) {
		if s != "" {
			c.missingText = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) { c.logger = logger }
}

func NewComposer(opts ...Option) *Composer {
	c := &Composer{
		mode:        ModeSplit,
		missingText: DefaultMissingText,
		logger:      slog.Default().With("component", "page_composer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose returns the cover followed by every unit's pages. images maps
// placeholder ids (and "cover") to files; absent ids get a stand-in page.
func (c *Composer) Compose(contents []book.ChapterContent, images map[string]string) []book.PageRecord {
	pages := []book.PageRecord{c.imagePage(book.CoverID, -1, "", images)}
	pages[0].Type = book.PageCover

	seen := map[string]bool{book.CoverID: true}
	for _, unit := range contents {
		var unitPages []book.PageRecord
		if c.mode == ModeAlternate {
			unitPages = c.alternate(unit, images, seen)
		} else {
			unitPages = c.split(unit, images, seen)
		}
		if len(unitPages) > 0 {
			unitPages[0].UnitStart = true
		}
		pages = append(pages, unitPages...)
	}

	c.number(pages)

	missing := 0
	for _, p := range pages {
		if p.Missing {
			missing++
		}
	}
	c.logger.Info("pages composed", "pages", len(pages), "units", len(contents), "missing_images", missing, "mode", c.mode)
	return pages
}

func (c *Composer) split(unit book.ChapterContent, images map[string]string, seen map[string]bool) []book.PageRecord {
	var pages []book.PageRecord
	var prose []string

	flush := func() {
		if len(prose) == 0 {
			return
		}
		pages = append(pages, c.textPage(unit, strings.Join(prose, "\n\n")))
		prose = nil
	}

	for _, para := range paragraphBreak.Split(unit.TextMarkdown, -1) {
		var inline []string
		for _, piece := range placeholder.Split(para) {
			if !piece.IsImage() {
				inline = append(inline, piece.Text)
				continue
			}
			if seen[piece.ID] {
				continue
			}
			seen[piece.ID] = true
			if len(inline) > 0 {
				prose = append(prose, strings.Join(inline, " "))
				inline = nil
			}
			flush()
			pages = append(pages, c.imagePage(piece.ID, unit.Index, unit.Title, images))
		}
		if len(inline) > 0 {
			prose = append(prose, strings.Join(inline, " "))
		}
	}
	flush()

	return append(pages, c.orphans(unit, images, seen)...)
}

func (c *Composer) alternate(unit book.ChapterContent, images map[string]string, seen map[string]bool) []book.PageRecord {
	var ids []string
	for _, id := range placeholder.References(unit.TextMarkdown) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var pages []book.PageRecord
	text := placeholder.Strip(unit.TextMarkdown)
	if len(ids) > 0 {
		pages = append(pages, c.imagePage(ids[0], unit.Index, unit.Title, images))
		ids = ids[1:]
	}
	if text != "" {
		pages = append(pages, c.textPage(unit, text))
	}
	for _, id := range ids {
		pages = append(pages, c.imagePage(id, unit.Index, unit.Title, images))
	}
	return append(pages, c.orphans(unit, images, seen)...)
}

// orphans places illustrations the unit owns but whose markers are no longer
// in its text, for example after a translation dropped one.
func (c *Composer) orphans(unit book.ChapterContent, images map[string]string, seen map[string]bool) []book.PageRecord {
	var pages []book.PageRecord
	for _, ph := range unit.ImagePlaceholders {
		if seen[ph.ID] {
			continue
		}
		seen[ph.ID] = true
		c.logger.Warn("placeholder not referenced in text, appending", "unit", unit.UnitID, "id", ph.ID)
		pages = append(pages, c.imagePage(ph.ID, unit.Index, unit.Title, images))
	}
	return pages
}

func (c *Composer) textPage(unit book.ChapterContent, text string) book.PageRecord {
	return book.PageRecord{
		Type:      book.PageText,
		UnitIndex: unit.Index,
		UnitTitle: unit.Title,
		Text:      text,
	}
}

func (c *Composer) imagePage(id string, unitIndex int, unitTitle string, images map[string]string) book.PageRecord {
	p := book.PageRecord{
		Type:          book.PageImage,
		UnitIndex:     unitIndex,
		UnitTitle:     unitTitle,
		PlaceholderID: id,
	}
	if path := images[id]; path != "" {
		p.ImagePath = path
	} else {
		p.Missing = true
		p.Text = c.missingText
	}
	return p
}

func (c *Composer) number(pages []book.PageRecord) {
	n := 1
	for i := range pages {
		if pages[i].Type == book.PageCover && !c.numberCover {
			pages[i].Number = 0
			continue
		}
		pages[i].Number = n
		n++
	}
}
