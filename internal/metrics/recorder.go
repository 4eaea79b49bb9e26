// Package metrics exposes pipeline observability hooks.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFallback ResultLabel = "fallback"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Unit and image outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
	OutcomeSuccess  = "success"
)

// Recorder defines observability hooks for books, stages, units and images.
// NoopRecorder is used when metrics are not configured.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveBookDuration(d time.Duration)
	IncBookOutcome(outcome string)
	IncUnitOutcome(outcome string)
	IncImageOutcome(outcome string)
	ObserveImageAttempts(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveBookDuration(time.Duration)          {}
func (NoopRecorder) IncBookOutcome(string)                      {}
func (NoopRecorder) IncUnitOutcome(string)                      {}
func (NoopRecorder) IncImageOutcome(string)                     {}
func (NoopRecorder) ObserveImageAttempts(int)                   {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
