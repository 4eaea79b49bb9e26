package illustrate

import (
	"log/slog"
	"time"

	"github.com/vampirenirmal/bookforge/internal/metrics"
)

// FallbackStrategy decides what an exhausted request leaves behind.
type FallbackStrategy int

const (
	// FallbackSynthesize writes a plain placeholder image so composition
	// always has a file to place.
	FallbackSynthesize FallbackStrategy = iota
	// FallbackRecordError leaves the path empty and records the error; the
	// composer renders a textual stand-in.
	FallbackRecordError
)

// ParseFallback maps the configuration value onto a strategy.
func ParseFallback(s string) FallbackStrategy {
	if s == "record" {
		return FallbackRecordError
	}
	return FallbackSynthesize
}

const (
	DefaultAttempts = 3
	DefaultBackoff  = 2 * time.Second
	DefaultThrottle = time.Second
)

type Option func(*Pipeline)

func WithAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithBackoff sets the fixed pause between attempts of one request.
func WithBackoff(d time.Duration) Option {
	return func(p *Pipeline) { p.backoff = d }
}

// WithThrottle sets the minimum spacing between external requests. Zero
// disables throttling.
func WithThrottle(d time.Duration) Option {
	return func(p *Pipeline) { p.throttle = d }
}

func WithFallback(s FallbackStrategy) Option {
	return func(p *Pipeline) { p.fallback = s }
}

// WithParallelism bounds the fan-out used once a style reference exists.
func WithParallelism(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithRequestTimeout bounds each generator call.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.requestTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = metrics.OrNoop(r) }
}
