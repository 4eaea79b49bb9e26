package render

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/h2non/filetype"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/vampirenirmal/bookforge/internal/domain/book"
)

const (
	bodyFontSize    = 14.0
	headingFontSize = 20.0
	numberFontSize  = 10.0
	lineHeightRatio = 0.55
)

// PDFRenderer lays pages out with fpdf core fonts.
type PDFRenderer struct {
	md goldmark.Markdown
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{md: goldmark.New()}
}

func (r *PDFRenderer) Format() string { return "pdf" }

func (r *PDFRenderer) Render(ctx context.Context, doc Document, layout Layout) (string, error) {
	out, err := outputPath(doc, layout, "pdf")
	if err != nil {
		return "", err
	}

	size := layout.PageSize
	if size == "" {
		size = "A4"
	}
	margin := layout.MarginCM
	if margin <= 0 {
		margin = DefaultMarginCM
	}
	margin *= 10 // mm

	pdf := fpdf.New("P", "mm", size, "")
	pdf.SetTitle(doc.Plan.Title, true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)

	w := &pdfWriter{
		pdf:    pdf,
		md:     r.md,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		margin: margin,
		title:  doc.Plan.Title,
	}
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch p.Type {
		case book.PageCover:
			w.cover(p, layout.CoverTitleOverlay)
		case book.PageImage:
			w.image(p)
		default:
			w.text(p)
		}
		if pdf.Err() {
			return "", failed("pdf", pdf.Error())
		}
	}

	if err := os.MkdirAll(layout.OutputDir, 0o755); err != nil {
		return "", failed("pdf", err)
	}
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", failed("pdf", err)
	}
	return out, nil
}

type pdfWriter struct {
	pdf    *fpdf.Fpdf
	md     goldmark.Markdown
	tr     func(string) string
	margin float64
	title  string
}

func (w *pdfWriter) cover(p book.PageRecord, overlay bool) {
	w.pdf.AddPage()
	pw, ph := w.pdf.GetPageSize()

	if p.Missing || !w.placeImage(p.ImagePath, 0, 0, pw, ph) {
		w.standIn(p.Text)
	}
	if overlay {
		w.pdf.SetAlpha(0.6, "Normal")
		w.pdf.SetFillColor(255, 255, 255)
		w.pdf.Rect(0, ph*0.08, pw, 24, "F")
		w.pdf.SetAlpha(1, "Normal")
		w.pdf.SetFont("Helvetica", "B", 26)
		w.pdf.SetTextColor(40, 40, 60)
		w.pdf.SetXY(0, ph*0.08+6)
		w.pdf.CellFormat(pw, 12, w.tr(w.title), "", 0, "C", false, 0, "")
	}
	w.number(p)
}

func (w *pdfWriter) image(p book.PageRecord) {
	w.pdf.AddPage()
	top := w.heading(p)
	pw, ph := w.pdf.GetPageSize()

	if p.Missing || !w.placeImage(p.ImagePath, w.margin, top, pw-2*w.margin, ph-w.margin-top) {
		w.standIn(p.Text)
	}
	w.number(p)
}

func (w *pdfWriter) text(p book.PageRecord) {
	w.pdf.AddPage()
	w.heading(p)
	pw, _ := w.pdf.GetPageSize()
	width := pw - 2*w.margin

	w.pdf.SetTextColor(30, 30, 30)
	for i, b := range w.blocks(p.Text) {
		if i > 0 {
			w.pdf.Ln(bodyFontSize * lineHeightRatio)
		}
		if b.heading {
			w.pdf.SetFont("Helvetica", "B", bodyFontSize+2)
		} else {
			w.pdf.SetFont("Helvetica", "", bodyFontSize)
		}
		w.pdf.MultiCell(width, bodyFontSize*lineHeightRatio, w.tr(b.text), "", "L", false)
	}
	w.number(p)
}

// heading prints the unit title on a unit's first page and returns the y
// position content should start at.
func (w *pdfWriter) heading(p book.PageRecord) float64 {
	if !p.UnitStart || p.UnitTitle == "" {
		return w.margin
	}
	pw, _ := w.pdf.GetPageSize()
	w.pdf.SetFont("Helvetica", "B", headingFontSize)
	w.pdf.SetTextColor(20, 20, 20)
	w.pdf.SetXY(w.margin, w.margin)
	w.pdf.MultiCell(pw-2*w.margin, headingFontSize*lineHeightRatio, w.tr(p.UnitTitle), "", "C", false)
	w.pdf.Ln(headingFontSize * lineHeightRatio)
	return w.pdf.GetY()
}

// placeImage fits the image inside the box, centred, preserving aspect
// ratio. It reports false when the file cannot be placed.
func (w *pdfWriter) placeImage(path string, x, y, boxW, boxH float64) bool {
	kind := imageType(path)
	if kind == "" || boxW <= 0 || boxH <= 0 {
		return false
	}
	opts := fpdf.ImageOptions{ImageType: kind}
	info := w.pdf.RegisterImageOptions(path, opts)
	if w.pdf.Err() || info == nil {
		// Clear the error so one bad file does not poison the document.
		w.pdf.ClearError()
		return false
	}

	iw, ih := info.Width(), info.Height()
	if iw <= 0 || ih <= 0 {
		return false
	}
	scale := min(boxW/iw, boxH/ih)
	dw, dh := iw*scale, ih*scale
	w.pdf.ImageOptions(path, x+(boxW-dw)/2, y+(boxH-dh)/2, dw, dh, false, opts, 0, "")
	return true
}

func (w *pdfWriter) standIn(msg string) {
	if msg == "" {
		msg = "[Image unavailable]"
	}
	pw, ph := w.pdf.GetPageSize()
	w.pdf.SetFont("Helvetica", "I", bodyFontSize)
	w.pdf.SetTextColor(128, 128, 128)
	w.pdf.SetXY(w.margin, ph/2)
	w.pdf.CellFormat(pw-2*w.margin, 10, w.tr(msg), "", 0, "C", false, 0, "")
}

func (w *pdfWriter) number(p book.PageRecord) {
	if p.Number == 0 {
		return
	}
	pw, ph := w.pdf.GetPageSize()
	label := strconv.Itoa(p.Number)
	w.pdf.SetFont("Helvetica", "", numberFontSize)
	w.pdf.SetTextColor(128, 128, 128)
	w.pdf.Text((pw-w.pdf.GetStringWidth(label))/2, ph-w.margin/2, label)
}

type textBlock struct {
	heading bool
	text    string
}

// blocks flattens markdown into headings and paragraphs of plain text.
func (w *pdfWriter) blocks(markdown string) []textBlock {
	src := []byte(markdown)
	root := w.md.Parser().Parse(text.NewReader(src))

	var out []textBlock
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		var sb strings.Builder
		_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					sb.WriteByte(' ')
				}
			}
			return ast.WalkContinue, nil
		})
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, textBlock{heading: n.Kind() == ast.KindHeading, text: s})
		}
	}
	return out
}

// imageType maps a file onto the fpdf image type, or "" when fpdf cannot
// embed it.
func imageType(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, 261)
	n, _ := f.Read(head)
	kind, err := filetype.Match(head[:n])
	if err != nil {
		return ""
	}
	switch kind.Extension {
	case "png":
		return "PNG"
	case "jpg":
		return "JPG"
	case "gif":
		return "GIF"
	}
	return ""
}
