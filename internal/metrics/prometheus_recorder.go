package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	bookDuration  prom.Histogram
	bookOutcome   *prom.CounterVec
	unitOutcome   *prom.CounterVec
	imageOutcome  *prom.CounterVec
	imageAttempts prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "bookforge",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookforge",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.bookDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "bookforge",
			Name:      "book_duration_seconds",
			Help:      "Total book generation duration",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		})
		pr.bookOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookforge",
			Name:      "book_outcomes_total",
			Help:      "Book runs by final status",
		}, []string{"outcome"})
		pr.unitOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookforge",
			Name:      "unit_outcomes_total",
			Help:      "Chapters and pages by accepted or fallback content",
		}, []string{"outcome"})
		pr.imageOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookforge",
			Name:      "image_outcomes_total",
			Help:      "Illustration requests by outcome",
		}, []string{"outcome"})
		pr.imageAttempts = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "bookforge",
			Name:      "image_attempts",
			Help:      "Attempts used per illustration request",
			Buckets:   []float64{1, 2, 3, 4, 5},
		})
		reg.MustRegister(pr.stageDuration, pr.stageResults, pr.bookDuration, pr.bookOutcome,
			pr.unitOutcome, pr.imageOutcome, pr.imageAttempts)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBookDuration(d time.Duration) {
	if p == nil || p.bookDuration == nil {
		return
	}
	p.bookDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBookOutcome(outcome string) {
	if p == nil || p.bookOutcome == nil {
		return
	}
	p.bookOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncUnitOutcome(outcome string) {
	if p == nil || p.unitOutcome == nil {
		return
	}
	p.unitOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncImageOutcome(outcome string) {
	if p == nil || p.imageOutcome == nil {
		return
	}
	p.imageOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveImageAttempts(n int) {
	if p == nil || p.imageAttempts == nil {
		return
	}
	p.imageAttempts.Observe(float64(n))
}
