// Package illustrate turns resolved placeholders and the cover concept into
// image files, keeping a consistent look through a shared style reference.
package illustrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/imagegen"
	"github.com/vampirenirmal/bookforge/internal/metrics"
	"github.com/vampirenirmal/bookforge/internal/storage"
)

// Pipeline requests one illustration per placeholder plus the cover.
type Pipeline struct {
	gen            imagegen.Generator
	store          *storage.FileSystem
	attempts       int
	backoff        time.Duration
	throttle       time.Duration
	fallback       FallbackStrategy
	parallelism    int
	requestTimeout time.Duration
	limiter        *rate.Limiter
	logger         *slog.Logger
	recorder       metrics.Recorder
}

// NewPipeline writes images below store's base directory.
func NewPipeline(gen imagegen.Generator, store *storage.FileSystem, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:            gen,
		store:          store,
		attempts:       DefaultAttempts,
		backoff:        DefaultBackoff,
		throttle:       DefaultThrottle,
		fallback:       FallbackSynthesize,
		parallelism:    1,
		requestTimeout: 2 * time.Minute,
		logger:         slog.Default().With("component", "image_pipeline"),
		recorder:       metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}

	limit := rate.Inf
	if p.throttle > 0 {
		limit = rate.Every(p.throttle)
	}
	p.limiter = rate.NewLimiter(limit, 1)
	return p
}

type job struct {
	id     string
	prompt string
	path   string
}

// Run illustrates every placeholder in order and the cover last. It only
// fails when ctx is cancelled; the partial result is returned alongside.
func (p *Pipeline) Run(ctx context.Context, plan *book.BookPlan, placeholders []book.ImagePlaceholder) (*Result, error) {
	jobs := make([]job, 0, len(placeholders)+1)
	for _, ph := range placeholders {
		jobs = append(jobs, p.newJob(ph.ID, PlaceholderPrompt(plan, ph.Description)))
	}
	cover := p.newJob(book.CoverID, CoverPrompt(plan))

	images := make([]book.GeneratedImage, len(jobs)+1)
	var reference string

	p.logger.Info("illustrating book", "placeholders", len(placeholders), "parallelism", p.parallelism)

	// Sequential until something succeeds; that path becomes the reference.
	next := 0
	for ; next < len(jobs) && reference == ""; next++ {
		if err := ctx.Err(); err != nil {
			return p.partial(images[:next], reference), err
		}
		images[next] = p.illustrate(ctx, jobs[next], "")
		if images[next].OK() {
			reference = images[next].ImagePath
			p.logger.Info("style reference established", "id", jobs[next].id, "path", reference)
		}
	}

	if next < len(jobs) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.parallelism)
		for i := next; i < len(jobs); i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				images[i] = p.illustrate(gctx, jobs[i], reference)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return p.partial(images[:len(jobs)], reference), err
		}
	}

	if err := ctx.Err(); err != nil {
		return p.partial(images[:len(jobs)], reference), err
	}
	images[len(jobs)] = p.illustrate(ctx, cover, reference)
	if reference == "" && images[len(jobs)].OK() {
		reference = images[len(jobs)].ImagePath
	}

	result := &Result{Images: images, Reference: reference}
	p.logger.Info("illustration complete", "requested", len(images), "failed", result.Failed())
	return result, ctx.Err()
}

func (p *Pipeline) partial(images []book.GeneratedImage, reference string) *Result {
	out := make([]book.GeneratedImage, 0, len(images))
	for _, img := range images {
		if img.PlaceholderID != "" {
			out = append(out, img)
		}
	}
	return &Result{Images: out, Reference: reference}
}

func (p *Pipeline) newJob(id, prompt string) job {
	path, err := p.store.Path(storage.ImageFile(id, "png"))
	if err != nil {
		// Ids come from the resolver and are slugged, so this only trips on a
		// misconfigured store; the request then fails and falls back.
		p.logger.Warn("no output path for image", "id", id, "error", err)
	}
	return job{id: id, prompt: prompt, path: path}
}

// illustrate runs all attempts for one job and always returns a record.
func (p *Pipeline) illustrate(ctx context.Context, j job, reference string) book.GeneratedImage {
	img := book.GeneratedImage{PlaceholderID: j.id, PromptUsed: j.prompt}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		img.Attempts = attempt
		path, err := p.try(ctx, j, reference)
		if err == nil {
			img.ImagePath = path
			p.recorder.ObserveImageAttempts(attempt)
			p.recorder.IncImageOutcome(metrics.OutcomeSuccess)
			p.logger.Debug("image ready", "id", j.id, "attempt", attempt, "path", path)
			return img
		}
		lastErr = err
		p.logger.Warn("image attempt failed", "id", j.id, "attempt", attempt, "max_attempts", p.attempts, "error", err)

		if ctx.Err() != nil || errors.Is(err, core.ErrNoAPIKey) || errors.Is(err, core.ErrInvalidInput) {
			break
		}
		if attempt < p.attempts && p.backoff > 0 {
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
			}
		}
	}

	p.recorder.ObserveImageAttempts(img.Attempts)
	img.ErrorMessage = lastErr.Error()
	if p.fallback == FallbackSynthesize && ctx.Err() == nil {
		path, err := synthesizeFallback(p.store, j.id)
		if err != nil {
			p.logger.Error("fallback image failed", "id", j.id, "error", err)
		} else {
			img.ImagePath = path
			img.Fallback = true
			p.recorder.IncImageOutcome(metrics.OutcomeFallback)
			return img
		}
	}
	p.recorder.IncImageOutcome(metrics.OutcomeFailed)
	return img
}

func (p *Pipeline) try(ctx context.Context, j job, reference string) (string, error) {
	if j.path == "" {
		return "", fmt.Errorf("%w: no output path for %s", core.ErrInvalidInput, j.id)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx := ctx
	if p.requestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
	}

	path, err := p.gen.Generate(callCtx, imagegen.Request{
		ID:             j.id,
		Prompt:         j.prompt,
		StyleReference: reference,
		OutputPath:     j.path,
	})
	if err != nil {
		return "", err
	}
	if err := verifyImage(path); err != nil {
		return "", err
	}
	return path, nil
}

// PlaceholderPrompt is "{description}. Style: {style}" followed by the
// descriptions of any roster characters the description names.
func PlaceholderPrompt(plan *book.BookPlan, description string) string {
	prompt := withStyle(description, plan.ImageStyleGuide)
	if appendix := characterAppendix(plan.Characters, description); appendix != "" {
		prompt += "\n\n" + appendix
	}
	return prompt
}

// CoverPrompt builds the cover request from the plan's cover concept.
func CoverPrompt(plan *book.BookPlan) string {
	concept := plan.CoverConcept
	if strings.TrimSpace(concept) == "" {
		concept = "Book cover for " + plan.Title
	}
	return withStyle(concept, plan.ImageStyleGuide)
}

func withStyle(desc, style string) string {
	desc = strings.TrimRight(strings.TrimSpace(desc), ".")
	if strings.TrimSpace(style) == "" {
		return desc
	}
	return desc + ". Style: " + style
}

func characterAppendix(roster []book.Character, description string) string {
	lower := strings.ToLower(description)
	var parts []string
	for _, c := range roster {
		if c.Name != "" && strings.Contains(lower, strings.ToLower(c.Name)) {
			parts = append(parts, fmt.Sprintf("%s: %s", c.Name, c.Description))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Characters: " + strings.Join(parts, "; ")
}
