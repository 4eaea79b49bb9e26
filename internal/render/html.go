package render

import (
	"bytes"
	"context"
	"html/template"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"

	"github.com/vampirenirmal/bookforge/internal/domain/book"
)

// HTMLRenderer writes a single self-contained page referencing the image
// files relative to the output directory.
type HTMLRenderer struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md:   goldmark.New(),
		tmpl: template.Must(template.New("book").Parse(htmlTemplate)),
	}
}

func (r *HTMLRenderer) Format() string { return "html" }

type htmlPage struct {
	Kind    string
	Number  int
	Heading string
	Body    template.HTML
	Image   string
	Missing string
	Overlay bool
}

func (r *HTMLRenderer) Render(ctx context.Context, doc Document, layout Layout) (string, error) {
	out, err := outputPath(doc, layout, "html")
	if err != nil {
		return "", err
	}

	pages := make([]htmlPage, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hp := htmlPage{Kind: string(p.Type), Number: p.Number}
		if p.UnitStart {
			hp.Heading = p.UnitTitle
		}
		switch {
		case p.Missing:
			hp.Missing = p.Text
		case p.Type == book.PageText:
			var buf bytes.Buffer
			if err := r.md.Convert([]byte(p.Text), &buf); err != nil {
				return "", failed("html", err)
			}
			hp.Body = template.HTML(buf.String())
		default:
			hp.Image = relativeTo(layout.OutputDir, p.ImagePath)
		}
		if p.Type == book.PageCover {
			hp.Overlay = layout.CoverTitleOverlay
		}
		pages = append(pages, hp)
	}

	var buf bytes.Buffer
	err = r.tmpl.Execute(&buf, map[string]any{
		"Title":  doc.Plan.Title,
		"Margin": layout.MarginCM,
		"Pages":  pages,
	})
	if err != nil {
		return "", failed("html", err)
	}

	if err := os.MkdirAll(layout.OutputDir, 0o755); err != nil {
		return "", failed("html", err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return "", failed("html", err)
	}
	return out, nil
}

func relativeTo(dir, path string) string {
	absDir, err1 := filepath.Abs(dir)
	absPath, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: Helvetica, sans-serif; margin: 0; background: #f5f5f5; }
.book { max-width: 800px; margin: 0 auto; padding: {{.Margin}}cm; }
.page { background: white; margin-bottom: 40px; padding: 40px; position: relative; }
.page img { max-width: 100%; height: auto; display: block; margin: 0 auto; }
.cover { padding: 0; }
.cover h1 { position: absolute; top: 8%; width: 100%; text-align: center; color: white; text-shadow: 0 2px 6px rgba(0,0,0,0.6); }
.missing { text-align: center; color: #888; font-style: italic; padding: 120px 0; }
.number { position: absolute; bottom: 10px; left: 50%; transform: translateX(-50%); font-size: 12px; color: #888; }
</style>
</head>
<body>
<div class="book">
{{- range .Pages}}
<section class="page {{.Kind}}">
{{- if .Overlay}}<h1>{{$.Title}}</h1>{{end}}
{{- if .Heading}}<h2>{{.Heading}}</h2>{{end}}
{{- if .Missing}}<p class="missing">{{.Missing}}</p>
{{- else if .Image}}<img src="{{.Image}}" alt="">
{{- else}}{{.Body}}{{end}}
{{- if .Number}}<span class="number">{{.Number}}</span>{{end}}
</section>
{{- end}}
</div>
</body>
</html>
`
