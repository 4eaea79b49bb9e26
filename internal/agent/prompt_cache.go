package agent

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"text/template"
)

//go:embed prompts/*.tmpl
var embeddedPrompts embed.FS

// PromptCache caches parsed prompt templates read from a file system.
type PromptCache struct {
	fsys      fs.FS
	mu        sync.RWMutex
	templates map[string]*template.Template
	raw       map[string]string
}

// NewPromptCache reads templates from fsys. A nil fsys means the embedded
// prompt set.
func NewPromptCache(fsys fs.FS) *PromptCache {
	if fsys == nil {
		sub, err := fs.Sub(embeddedPrompts, "prompts")
		if err != nil {
			panic(err)
		}
		fsys = sub
	}
	return &PromptCache{
		fsys:      fsys,
		templates: make(map[string]*template.Template),
		raw:       make(map[string]string),
	}
}

// LoadPrompt loads a prompt file from the cache or the file system.
func (pc *PromptCache) LoadPrompt(name string) (string, error) {
	name = fileName(name)

	pc.mu.RLock()
	if content, ok := pc.raw[name]; ok {
		pc.mu.RUnlock()
		return content, nil
	}
	pc.mu.RUnlock()

	content, err := fs.ReadFile(pc.fsys, name)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}

	pc.mu.Lock()
	pc.raw[name] = string(content)
	pc.mu.Unlock()

	return string(content), nil
}

// LoadTemplate loads and parses a prompt template.
func (pc *PromptCache) LoadTemplate(name string) (*template.Template, error) {
	file := fileName(name)

	pc.mu.RLock()
	if tmpl, ok := pc.templates[file]; ok {
		pc.mu.RUnlock()
		return tmpl, nil
	}
	pc.mu.RUnlock()

	content, err := pc.LoadPrompt(file)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(strings.TrimSuffix(file, path.Ext(file))).
		Option("missingkey=zero").
		Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", file, err)
	}

	pc.mu.Lock()
	pc.templates[file] = tmpl
	pc.mu.Unlock()

	return tmpl, nil
}

// Render executes the "system" and "user" blocks of a template. A template
// without a system block yields an empty system prompt.
func (pc *PromptCache) Render(name string, data any) (system, user string, err error) {
	tmpl, err := pc.LoadTemplate(name)
	if err != nil {
		return "", "", err
	}

	var sb, ub strings.Builder
	if t := tmpl.Lookup("system"); t != nil {
		if err := t.Execute(&sb, data); err != nil {
			return "", "", fmt.Errorf("rendering %s system prompt: %w", name, err)
		}
	}
	userTmpl := tmpl.Lookup("user")
	if userTmpl == nil {
		userTmpl = tmpl
	}
	if err := userTmpl.Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("rendering %s prompt: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}

func (pc *PromptCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.templates = make(map[string]*template.Template)
	pc.raw = make(map[string]string)
}

// Preload loads multiple prompts into cache
func (pc *PromptCache) Preload(names []string) error {
	for _, name := range names {
		if _, err := pc.LoadTemplate(name); err != nil {
			return fmt.Errorf("preloading %s: %w", name, err)
		}
	}
	return nil
}

func (pc *PromptCache) Stats() (templates int, raw int) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return len(pc.templates), len(pc.raw)
}

func fileName(name string) string {
	if path.Ext(name) == "" {
		return name + ".tmpl"
	}
	return name
}
