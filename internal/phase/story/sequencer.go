package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/metrics"
	"github.com/vampirenirmal/bookforge/internal/placeholder"
	"github.com/vampirenirmal/bookforge/internal/storyctx"
)

// UnitState tracks one unit through generation.
type UnitState string

const (
	UnitPending          UnitState = "pending"
	UnitGenerating       UnitState = "generating"
	UnitAccepted         UnitState = "accepted"
	UnitFallbackAccepted UnitState = "fallback_accepted"
)

// State is the sequencer's own lifecycle.
type State string

const (
	StateInit    State = "init"
	StateRunning State = "running"
	StateDone    State = "done"
)

// ErrAlreadyStarted is returned by Run on a sequencer that has been run before.
var ErrAlreadyStarted = errors.New("sequencer already started")

const defaultUnitTimeout = 3 * time.Minute

// UnitRequest is everything a writer sees for one unit.
type UnitRequest struct {
	Index   int
	UnitID  string
	Kind    book.UnitKind
	Total   int
	Outline book.ChapterOutline
	Plan    *book.BookPlan
	// StoryContext is the rendered state of all previous units.
	StoryContext string
	// PreviousText is only set when no story context is threaded through.
	PreviousText string
}

// UnitWriter produces the raw text of one unit.
type UnitWriter interface {
	WriteUnit(ctx context.Context, req UnitRequest) (string, error)
}

// UnitWriterFunc adapts a function to UnitWriter.
type UnitWriterFunc func(ctx context.Context, req UnitRequest) (string, error)

func (f UnitWriterFunc) WriteUnit(ctx context.Context, req UnitRequest) (string, error) {
	return f(ctx, req)
}

type SequencerOption func(*Sequencer)

// WithStoryContext threads a story context through the units. Without one,
// each unit only sees the previous unit's text.
func WithStoryContext(c *storyctx.Context) SequencerOption {
	return func(s *Sequencer) { s.story = c }
}

func WithUnitKind(k book.UnitKind) SequencerOption {
	return func(s *Sequencer) {
		if k == book.UnitPage || k == book.UnitChapter {
			s.kind = k
		}
	}
}

func WithUnitTimeout(d time.Duration) SequencerOption {
	return func(s *Sequencer) {
		if d > 0 {
			s.unitTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) SequencerOption {
	return func(s *Sequencer) { s.logger = logger }
}

func WithRecorder(r metrics.Recorder) SequencerOption {
	return func(s *Sequencer) { s.recorder = metrics.OrNoop(r) }
}

// WithProgress persists each unit outcome as it is accepted.
func WithProgress(t *core.UnitTracker) SequencerOption {
	return func(s *Sequencer) { s.progress = t }
}

// Sequencer writes the units of a plan strictly in order. A unit whose
// generation fails is replaced by a deterministic fallback and never retried.
type Sequencer struct {
	plan        *book.BookPlan
	writer      UnitWriter
	story       *storyctx.Context
	kind        book.UnitKind
	unitTimeout time.Duration
	logger      *slog.Logger
	recorder    metrics.Recorder
	progress    *core.UnitTracker

	mu       sync.RWMutex
	state    State
	units    []UnitState
	contents []book.ChapterContent
}

func NewSequencer(plan *book.BookPlan, writer UnitWriter, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		plan:        plan,
		writer:      writer,
		kind:        book.UnitChapter,
		unitTimeout: defaultUnitTimeout,
		logger:      slog.Default().With("component", "sequencer"),
		recorder:    metrics.NoopRecorder{},
		state:       StateInit,
		units:       make([]UnitState, len(plan.Chapters)),
	}
	for i := range s.units {
		s.units[i] = UnitPending
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run writes every unit. The only error is cancellation of ctx, in which
// case the units accepted so far are returned with it.
func (s *Sequencer) Run(ctx context.Context) ([]book.ChapterContent, error) {
	s.mu.Lock()
	if s.state != StateInit {
		s.mu.Unlock()
		return s.Contents(), ErrAlreadyStarted
	}
	s.state = StateRunning
	s.mu.Unlock()

	total := len(s.plan.Chapters)
	s.logger.Info("writing units", "title", s.plan.Title, "units", total, "kind", s.kind)

	for i, outline := range s.plan.Chapters {
		if err := ctx.Err(); err != nil {
			return s.Contents(), err
		}

		req := s.request(i, outline)
		s.setUnit(i, UnitGenerating)
		s.logger.Info("writing unit", "unit", req.UnitID, "progress", fmt.Sprintf("%d/%d", i+1, total))

		text, cause := s.write(ctx, req)
		if cause != nil && ctx.Err() != nil {
			s.setUnit(i, UnitPending)
			return s.Contents(), ctx.Err()
		}

		content := s.accept(ctx, req, text, cause)

		s.mu.Lock()
		s.contents = append(s.contents, content)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.state = StateDone
	s.mu.Unlock()

	s.logger.Info("all units written", "units", total, "placeholders", len(s.AllImagePlaceholders()))
	return s.Contents(), nil
}

// request builds the writer input from the state after units 0..i-1.
func (s *Sequencer) request(i int, outline book.ChapterOutline) UnitRequest {
	req := UnitRequest{
		Index:   i,
		UnitID:  s.kind.UnitID(i + 1),
		Kind:    s.kind,
		Total:   len(s.plan.Chapters),
		Outline: outline,
		Plan:    s.plan,
	}
	if s.story != nil {
		req.StoryContext = s.story.ForGeneration()
		return req
	}

	s.mu.RLock()
	if n := len(s.contents); n > 0 {
		req.PreviousText = placeholder.Strip(s.contents[n-1].TextMarkdown)
	}
	s.mu.RUnlock()
	return req
}

func (s *Sequencer) write(ctx context.Context, req UnitRequest) (string, error) {
	unitCtx, cancel := context.WithTimeout(ctx, s.unitTimeout)
	defer cancel()

	text, err := s.writer.WriteUnit(unitCtx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty unit text", core.ErrMalformedResponse)
	}
	return text, nil
}

// accept resolves placeholders, folds the unit into the story context and
// records the outcome. cause is non-nil when text must be synthesized.
func (s *Sequencer) accept(ctx context.Context, req UnitRequest, text string, cause error) book.ChapterContent {
	state, outcome := UnitAccepted, metrics.OutcomeAccepted
	if cause != nil {
		s.logger.Warn("unit generation failed, using fallback", "unit", req.UnitID, "error", cause)
		text = FallbackText(req.Kind, req.Outline)
		state, outcome = UnitFallbackAccepted, metrics.OutcomeFallback
	}

	resolved := placeholder.Resolve(req.UnitID, text)
	if m := placeholder.CheckExpected(req.UnitID, req.Outline.ImagePlaceholdersNeeded, len(resolved.Placeholders)); m != nil {
		s.logger.Warn("placeholder count mismatch", "unit", req.UnitID, "expected", m.Expected, "actual", m.Actual)
	}

	content := book.ChapterContent{
		Index:             req.Index,
		UnitID:            req.UnitID,
		Title:             req.Outline.Title,
		TextMarkdown:      resolved.Text,
		ImagePlaceholders: resolved.Placeholders,
		Fallback:          cause != nil,
	}

	if s.story != nil {
		err := s.story.Update(
			storyctx.UnitInput{Index: req.Index, Title: req.Outline.Title, Summary: req.Outline.Summary},
			storyctx.UnitOutput{Text: resolved.Text},
		)
		if err != nil {
			s.logger.Warn("story context not updated", "unit", req.UnitID, "error", err)
		}
	}

	if s.progress != nil {
		if err := s.progress.Record(ctx, req.Index, req.UnitID, len(resolved.Placeholders), cause); err != nil {
			s.logger.Warn("failed to record unit progress", "unit", req.UnitID, "error", err)
		}
	}

	s.recorder.IncUnitOutcome(outcome)
	s.setUnit(req.Index, state)
	return content
}

func (s *Sequencer) setUnit(i int, st UnitState) {
	s.mu.Lock()
	s.units[i] = st
	s.mu.Unlock()
}

// Contents returns the accepted units in plan order.
func (s *Sequencer) Contents() []book.ChapterContent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]book.ChapterContent(nil), s.contents...)
}

// AllImagePlaceholders flattens placeholders in unit order, then marker order.
func (s *Sequencer) AllImagePlaceholders() []book.ImagePlaceholder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	units := make([][]book.ImagePlaceholder, len(s.contents))
	for i, c := range s.contents {
		units[i] = c.ImagePlaceholders
	}
	return placeholder.Flatten(units)
}

func (s *Sequencer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Sequencer) UnitStates() []UnitState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]UnitState(nil), s.units...)
}

// FallbackText is the body used for a unit whose generation failed. It
// carries exactly the planned number of markers, spread over an opening,
// middle and closing section.
func FallbackText(kind book.UnitKind, outline book.ChapterOutline) string {
	if kind == "" {
		kind = book.UnitChapter
	}
	title := strings.TrimSpace(outline.Title)
	// Brackets in a title would end a marker early.
	markerTitle := strings.Join(strings.Fields(strings.NewReplacer("[", " ", "]", " ").Replace(title)), " ")
	summary := strings.TrimSpace(outline.Summary)
	if summary == "" {
		summary = title
	}
	summary = strings.TrimRight(summary, ".")

	opening, middle, closing := splitMarkers(max(outline.ImagePlaceholdersNeeded, 0))

	var paragraphs []string
	k := 0
	markers := func(n int) {
		for range n {
			k++
			desc := fmt.Sprintf("%s - scene %d", markerTitle, k)
			if k == 1 {
				desc = "Opening scene for " + markerTitle
			}
			paragraphs = append(paragraphs, placeholder.Marker(desc))
		}
	}

	markers(opening)
	paragraphs = append(paragraphs, fmt.Sprintf("This is the engaging content for %s '%s'. It tells the story of %s.", kind, title, summary))
	markers(middle)
	paragraphs = append(paragraphs, fmt.Sprintf("As the %s goes on, '%s' unfolds one step at a time.", kind, title))
	markers(closing)
	paragraphs = append(paragraphs, "And so this part of the story comes to an end.")

	return strings.Join(paragraphs, "\n\n")
}

// splitMarkers divides n as evenly as possible. Leftovers go to the opening
// first, then the closing.
func splitMarkers(n int) (opening, middle, closing int) {
	base, rem := n/3, n%3
	opening, middle, closing = base, base, base
	if rem > 0 {
		opening++
	}
	if rem > 1 {
		closing++
	}
	return opening, middle, closing
}
