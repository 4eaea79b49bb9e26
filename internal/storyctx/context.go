// Package storyctx accumulates the narrative state of a book while its units
// are generated, and renders a bounded summary of it for the next prompt.
package storyctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vampirenirmal/bookforge/internal/placeholder"
)

const (
	DefaultSummaryWindow = 3
	DefaultMaxChars      = 2000
	SummaryChars         = 200

	promptCharacters = 8
	promptMoods      = 5
	promptPlotPoints = 5
	promptTensions   = 5
)

// ErrOutOfOrder is returned when Update is called for a unit other than the
// next one.
var ErrOutOfOrder = errors.New("story context updated out of order")

type CharacterState struct {
	Name            string `json:"name"`
	FirstAppearance int    `json:"first_appearance"`
	Location        string `json:"location,omitempty"`
	Emotion         string `json:"emotion,omitempty"`
	LastSeen        int    `json:"last_seen"`
}

type PlotPoint struct {
	Unit         int      `json:"unit"`
	Trigger      string   `json:"trigger"`
	Sentence     string   `json:"sentence"`
	Participants []string `json:"participants,omitempty"`
}

type Tension struct {
	Unit     int    `json:"unit"`
	Trigger  string `json:"trigger"`
	Sentence string `json:"sentence"`
}

// Record is the serializable form of a Context.
type Record struct {
	UnitsProcessed  int              `json:"units_processed"`
	SummaryWindow   int              `json:"summary_window"`
	MaxChars        int              `json:"max_chars"`
	Roster          []string         `json:"roster,omitempty"`
	Summaries       []string         `json:"summaries"`
	Characters      []CharacterState `json:"characters"`
	PlotPoints      []PlotPoint      `json:"plot_points"`
	Moods           []string         `json:"moods"`
	Tensions        []Tension        `json:"tensions"`
	PlannedThemes   []string         `json:"planned_themes,omitempty"`
	DevelopedThemes []string         `json:"developed_themes"`
}

// UnitInput describes the unit as planned.
type UnitInput struct {
	Index             int
	Title             string
	Summary           string
	SceneDescription  string
	CharactersPresent []string
}

// UnitOutput is the accepted text of the unit.
type UnitOutput struct {
	Text string
}

type Option func(*Context)

func WithThemes(themes ...string) Option {
	return func(c *Context) {
		for _, t := range themes {
			if t = strings.TrimSpace(t); t != "" && !contains(c.plannedThemes, t) {
				c.plannedThemes = append(c.plannedThemes, t)
			}
		}
	}
}

// WithRoster sets the known character names used when a unit does not list
// who is present.
func WithRoster(names ...string) Option {
	return func(c *Context) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" && !contains(c.roster, n) {
				c.roster = append(c.roster, n)
			}
		}
	}
}

func WithSummaryWindow(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.window = n
		}
	}
}

func WithMaxChars(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// Context is safe for concurrent readers, but Update calls must arrive in
// unit order from a single writer.
type Context struct {
	mu sync.RWMutex

	window   int
	maxChars int
	roster   []string

	processed  int
	summaries  []string
	characters map[string]*CharacterState
	plot       []PlotPoint
	moods      []string
	tensions   []Tension

	plannedThemes   []string
	developedThemes []string
}

func New(opts ...Option) *Context {
	c := &Context{
		window:     DefaultSummaryWindow,
		maxChars:   DefaultMaxChars,
		characters: make(map[string]*CharacterState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) UnitsProcessed() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.processed
}

// Update folds one completed unit into the context.
func (c *Context) Update(in UnitInput, out UnitOutput) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if in.Index != c.processed {
		return fmt.Errorf("%w: got unit %d, expected %d", ErrOutOfOrder, in.Index, c.processed)
	}

	text := placeholder.Strip(out.Text)
	mood := classifyMood(text)

	present := in.CharactersPresent
	if len(present) == 0 {
		present = c.rosterIn(text)
	}

	scene := in.SceneDescription
	if strings.TrimSpace(scene) == "" {
		scene = in.Summary
	}
	location := findLocation(scene)

	for _, name := range present {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		st, ok := c.characters[name]
		if !ok {
			st = &CharacterState{Name: name, FirstAppearance: in.Index}
			c.characters[name] = st
		}
		if location != "" {
			st.Location = location
		}
		st.Emotion = mood
		st.LastSeen = in.Index
	}

	if len(c.moods) == 0 || c.moods[len(c.moods)-1] != mood {
		c.moods = append(c.moods, mood)
	}

	c.extractPlotAndTension(in.Index, text, present)
	c.confirmThemes(text)

	summary := truncate(strings.TrimSpace(in.Title+": "+strings.Join(strings.Fields(text), " ")), SummaryChars)
	c.summaries = append(c.summaries, summary)
	if len(c.summaries) > c.window {
		c.summaries = append([]string(nil), c.summaries[len(c.summaries)-c.window:]...)
	}

	c.processed++
	return nil
}

func (c *Context) rosterIn(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, n := range c.roster {
		if strings.Contains(lower, strings.ToLower(n)) {
			found = append(found, n)
		}
	}
	return found
}

func (c *Context) extractPlotAndTension(unit int, text string, present []string) {
	sents := sentences(text)
	sentWords := make([]map[string]bool, len(sents))
	for i, s := range sents {
		sentWords[i] = wordSet(s)
	}

	for _, trig := range plotTriggers {
		for i, s := range sents {
			if sentWords[i][trig] {
				c.plot = append(c.plot, PlotPoint{
					Unit:         unit,
					Trigger:      trig,
					Sentence:     truncate(s, SummaryChars),
					Participants: append([]string(nil), present...),
				})
				break
			}
		}
	}

	for i, s := range sents {
		for _, trig := range tensionTriggers {
			if !sentWords[i][trig] {
				continue
			}
			t := Tension{Unit: unit, Trigger: trig, Sentence: truncate(s, SummaryChars)}
			if !c.hasTension(t) {
				c.tensions = append(c.tensions, t)
			}
		}
	}
}

func (c *Context) hasTension(t Tension) bool {
	for _, e := range c.tensions {
		if e.Trigger == t.Trigger && e.Sentence == t.Sentence {
			return true
		}
	}
	return false
}

func (c *Context) confirmThemes(text string) {
	set := wordSet(text)
	for _, theme := range c.plannedThemes {
		if contains(c.developedThemes, theme) {
			continue
		}
		for _, w := range themeWords(theme) {
			if set[w] {
				c.developedThemes = append(c.developedThemes, theme)
				break
			}
		}
	}
}

// Characters returns character state ordered by first appearance, then name.
func (c *Context) Characters() []CharacterState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedCharacters()
}

func (c *Context) sortedCharacters() []CharacterState {
	out := make([]CharacterState, 0, len(c.characters))
	for _, st := range c.characters {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstAppearance != out[j].FirstAppearance {
			return out[i].FirstAppearance < out[j].FirstAppearance
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (c *Context) DevelopedThemes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.developedThemes...)
}

func (c *Context) Moods() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.moods...)
}

// ForGeneration renders the context as prompt input. Its length never
// exceeds the configured maximum regardless of how many units were seen.
func (c *Context) ForGeneration() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.processed == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Story so far (%d units written):\n", c.processed)
	for _, s := range c.summaries {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteByte('\n')
	}

	chars := c.sortedCharacters()
	sort.SliceStable(chars, func(i, j int) bool { return chars[i].LastSeen > chars[j].LastSeen })
	if len(chars) > promptCharacters {
		chars = chars[:promptCharacters]
	}
	if len(chars) > 0 {
		b.WriteString("Characters:\n")
		for _, ch := range chars {
			fmt.Fprintf(&b, "- %s", ch.Name)
			if ch.Location != "" {
				fmt.Fprintf(&b, " (at the %s)", ch.Location)
			}
			if ch.Emotion != "" {
				fmt.Fprintf(&b, ", feeling %s", ch.Emotion)
			}
			b.WriteByte('\n')
		}
	}

	if moods := tail(c.moods, promptMoods); len(moods) > 0 {
		fmt.Fprintf(&b, "Mood progression: %s\n", strings.Join(moods, " -> "))
	}

	if len(c.plot) > 0 {
		b.WriteString("Key events:\n")
		for _, p := range tail(c.plot, promptPlotPoints) {
			fmt.Fprintf(&b, "- %s\n", p.Sentence)
		}
	}

	if len(c.tensions) > 0 {
		b.WriteString("Open tensions:\n")
		for _, t := range tail(c.tensions, promptTensions) {
			fmt.Fprintf(&b, "- %s\n", t.Sentence)
		}
	}

	if len(c.developedThemes) > 0 {
		fmt.Fprintf(&b, "Themes developed: %s\n", strings.Join(c.developedThemes, ", "))
	}

	return truncate(strings.TrimRight(b.String(), "\n"), c.maxChars)
}

// Summary is a plain-text overview used for the story summary artifact.
func (c *Context) Summary() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Units processed: %d\n", c.processed)
	fmt.Fprintf(&b, "Characters: %d\n", len(c.characters))
	for _, ch := range c.sortedCharacters() {
		fmt.Fprintf(&b, "  %s (first seen in unit %d, last seen in unit %d)\n", ch.Name, ch.FirstAppearance+1, ch.LastSeen+1)
	}
	fmt.Fprintf(&b, "Mood log: %s\n", strings.Join(c.moods, ", "))
	fmt.Fprintf(&b, "Plot points: %d\n", len(c.plot))
	fmt.Fprintf(&b, "Tensions: %d\n", len(c.tensions))
	fmt.Fprintf(&b, "Themes developed: %s\n", strings.Join(c.developedThemes, ", "))
	return b.String()
}

func (c *Context) Snapshot() Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plot := make([]PlotPoint, len(c.plot))
	for i, p := range c.plot {
		p.Participants = append([]string(nil), p.Participants...)
		plot[i] = p
	}

	return Record{
		UnitsProcessed:  c.processed,
		SummaryWindow:   c.window,
		MaxChars:        c.maxChars,
		Roster:          append([]string(nil), c.roster...),
		Summaries:       append([]string{}, c.summaries...),
		Characters:      c.sortedCharacters(),
		PlotPoints:      plot,
		Moods:           append([]string{}, c.moods...),
		Tensions:        append([]Tension{}, c.tensions...),
		PlannedThemes:   append([]string(nil), c.plannedThemes...),
		DevelopedThemes: append([]string{}, c.developedThemes...),
	}
}

// Restore replaces the whole state with r.
func (c *Context) Restore(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processed = r.UnitsProcessed
	c.window = DefaultSummaryWindow
	if r.SummaryWindow > 0 {
		c.window = r.SummaryWindow
	}
	c.maxChars = DefaultMaxChars
	if r.MaxChars > 0 {
		c.maxChars = r.MaxChars
	}
	c.roster = append([]string(nil), r.Roster...)
	c.summaries = append([]string(nil), r.Summaries...)
	c.characters = make(map[string]*CharacterState, len(r.Characters))
	for _, ch := range r.Characters {
		c.characters[ch.Name] = &ch
	}
	c.plot = nil
	for _, p := range r.PlotPoints {
		p.Participants = append([]string(nil), p.Participants...)
		c.plot = append(c.plot, p)
	}
	c.moods = append([]string(nil), r.Moods...)
	c.tensions = append([]Tension(nil), r.Tensions...)
	c.plannedThemes = append([]string(nil), r.PlannedThemes...)
	c.developedThemes = append([]string(nil), r.DevelopedThemes...)
}

func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

func (c *Context) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decoding story context: %w", err)
	}
	c.Restore(r)
	return nil
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
