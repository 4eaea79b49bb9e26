package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/config"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/imagegen"
	"github.com/vampirenirmal/bookforge/internal/metrics"
	"github.com/vampirenirmal/bookforge/internal/phase/story"
)

// CLI is the root command line.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (default: $BOOKFORGE_CONFIG or ~/.config/bookforge/config.yaml)" type:"path"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	LogJSON bool             `name:"log-json" help:"Emit logs as JSON"`
	Mock    bool             `help:"Use offline mock text and image providers"`
	Output  string           `short:"o" help:"Override the output directory" type:"path"`
	Format  string           `help:"Override the document format (pdf or html)"`
	Version kong.VersionFlag `help:"Show version and exit"`

	Generate GenerateCmd `cmd:"" help:"Generate a complete book from an idea"`
	Plan     PlanCmd     `cmd:"" help:"Plan a book without writing it"`
	Resume   ResumeCmd   `cmd:"" help:"Continue a planned or interrupted book from its checkpoint"`
	Render   RenderCmd   `cmd:"" help:"Re-render a generated book from its saved artifacts"`
	Serve    ServeCmd    `cmd:"" help:"Run the HTTP API"`
	Init     InitCmd     `cmd:"" help:"Write a default configuration file"`

	stdout io.Writer `kong:"-"`
}

// AfterApply sets up logging once flags are parsed.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.LogJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func run(args []string) error {
	return runWith(args, os.Stdout)
}

func runWith(args []string, stdout io.Writer) error {
	cli := &CLI{stdout: stdout}
	parser, err := kong.New(cli,
		kong.Name("bookforge"),
		kong.Description("Generate illustrated books from a one-line idea."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Writers(stdout, os.Stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(cli)
}

// loadConfig applies the global flags on top of file and environment.
func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.Config
	if path == "" {
		path = config.DefaultPath()
	}
	return config.LoadFrom(path, func(cfg *config.Config) {
		if c.Mock {
			cfg.Text.Provider = "mock"
			cfg.Image.Provider = "mock"
		}
		if c.Output != "" {
			cfg.Paths.OutputDir = c.Output
		}
		if c.Format != "" {
			cfg.Layout.Format = c.Format
		}
	})
}

// engine wires configured providers into a story engine.
func (c *CLI) engine(cfg *config.Config, recorder metrics.Recorder) (*story.Engine, error) {
	logger := slog.Default()
	text, err := agent.NewFromConfig(cfg.Text, cfg.Limits, cfg.Paths.OutputDir, logger)
	if err != nil {
		return nil, fmt.Errorf("text provider: %w", err)
	}
	images, err := imagegen.NewFromConfig(cfg.Image, cfg.Limits, logger)
	if err != nil {
		return nil, fmt.Errorf("image provider: %w", err)
	}
	return story.NewEngine(cfg, text, images,
		story.WithEngineLogger(logger),
		story.WithEngineRecorder(recorder),
	), nil
}

// RequestFlags are the inputs shared by generate and plan.
type RequestFlags struct {
	Idea string `arg:"" help:"One-line book idea"`

	Title          string   `help:"Fix the book title"`
	Genre          string   `help:"Fix the genre"`
	Audience       string   `help:"Fix the target audience"`
	WritingStyle   string   `name:"writing-style" help:"Fix the writing style guide"`
	ImageStyle     string   `name:"image-style" help:"Fix the illustration style guide"`
	Cover          string   `help:"Fix the cover concept"`
	Theme          string   `help:"Fix the central theme"`
	Element        []string `help:"Key story element (repeatable)"`
	Character      []string `help:"Character as name=description (repeatable)"`
	CharacterImage []string `name:"character-image" help:"Character reference image as name=path (repeatable)"`

	Unit         string `help:"Story unit kind" enum:"chapter,page" default:"chapter"`
	Trends       bool   `help:"Consult trend feeds while planning"`
	StyleExample string `name:"style-example" help:"File with sample prose to imitate" type:"path"`
	Translate    string `help:"Also translate the finished text into this language"`
}

func (f *RequestFlags) request() (book.Request, error) {
	req := book.Request{
		Idea: f.Idea,
		Overrides: book.Overrides{
			Title:             f.Title,
			Genre:             f.Genre,
			TargetAudience:    f.Audience,
			WritingStyleGuide: f.WritingStyle,
			ImageStyleGuide:   f.ImageStyle,
			CoverConcept:      f.Cover,
			Theme:             f.Theme,
			KeyElements:       f.Element,
		},
		UnitKind:   book.UnitKind(f.Unit),
		FindTrends: f.Trends,
		Translate:  f.Translate,
	}

	if f.StyleExample != "" {
		data, err := os.ReadFile(f.StyleExample)
		if err != nil {
			return req, fmt.Errorf("reading style example: %w", err)
		}
		req.StyleExample = string(data)
	}

	byName := map[string]*book.CharacterInput{}
	var order []string
	add := func(flag, raw string, set func(*book.CharacterInput, string)) error {
		name, value, ok := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.TrimSpace(value) == "" {
			return fmt.Errorf("--%s %q: want name=value", flag, raw)
		}
		c, seen := byName[strings.ToLower(name)]
		if !seen {
			c = &book.CharacterInput{Name: name}
			byName[strings.ToLower(name)] = c
			order = append(order, strings.ToLower(name))
		}
		set(c, strings.TrimSpace(value))
		return nil
	}
	for _, raw := range f.Character {
		if err := add("character", raw, func(c *book.CharacterInput, v string) { c.Description = v }); err != nil {
			return req, err
		}
	}
	for _, raw := range f.CharacterImage {
		err := add("character-image", raw, func(c *book.CharacterInput, v string) {
			c.ImagePath, _ = filepath.Abs(v)
		})
		if err != nil {
			return req, err
		}
	}
	for _, key := range order {
		req.Characters = append(req.Characters, *byName[key])
	}
	return req, nil
}

// printFields writes label/value pairs as an aligned block.
func printFields(w io.Writer, kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(w, "%-14s %s\n", kv[i]+":", kv[i+1])
	}
}
