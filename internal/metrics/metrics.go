// Package metrics holds the Prometheus collectors for the SOP pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Pipeline outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds Prometheus metrics for webhook ingress and the pipeline.
type Metrics struct {
	PipelineRunsTotal     *prometheus.CounterVec
	StepFailuresTotal     *prometheus.CounterVec
	PipelineDuration      *prometheus.HistogramVec
	WebhookEventsTotal    *prometheus.CounterVec
	DuplicatesTotal       prometheus.Counter
	RetentionDeletedTotal prometheus.Counter
}

// New creates and registers the collectors. Registration happens once per
// process; later calls return the same instance.
//
// Metrics:
//   - voicesop_pipeline_runs_total{variant,outcome}
//   - voicesop_pipeline_step_failures_total{step,policy}
//   - voicesop_pipeline_duration_seconds{variant}
//   - voicesop_webhook_events_total{source,type}
//   - voicesop_webhook_duplicates_total
//   - voicesop_retention_deleted_total
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			PipelineRunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "voicesop_pipeline_runs_total",
					Help: "Total number of pipeline runs",
				},
				[]string{"variant", "outcome"}, // "sync" or "async"
			),

			StepFailuresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "voicesop_pipeline_step_failures_total",
					Help: "Total number of failed pipeline steps by failure policy",
				},
				[]string{"step", "policy"},
			),

			PipelineDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "voicesop_pipeline_duration_seconds",
					Help:    "Duration of pipeline runs in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
				},
				[]string{"variant"},
			),

			WebhookEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "voicesop_webhook_events_total",
					Help: "Total number of inbound webhook events",
				},
				[]string{"source", "type"},
			),

			DuplicatesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "voicesop_webhook_duplicates_total",
					Help: "Total number of duplicate end-of-call reports rejected",
				},
			),

			RetentionDeletedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "voicesop_retention_deleted_total",
					Help: "Total number of webhook log rows removed by retention",
				},
			),
		}
	})

	return globalMetrics
}

// RecordRun records a finished pipeline run.
func (m *Metrics) RecordRun(variant, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(variant, outcome).Inc()
	m.PipelineDuration.WithLabelValues(variant).Observe(d.Seconds())
}

// RecordStepFailure records a failed step and the policy applied to it.
func (m *Metrics) RecordStepFailure(step, policy string) {
	if m == nil {
		return
	}
	m.StepFailuresTotal.WithLabelValues(step, policy).Inc()
}

// RecordWebhook records an inbound webhook event.
func (m *Metrics) RecordWebhook(source, eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.WebhookEventsTotal.WithLabelValues(source, eventType).Inc()
}

// RecordDuplicate records a rejected duplicate delivery.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// RecordRetention records rows removed by a retention sweep.
func (m *Metrics) RecordRetention(deleted int64) {
	if m == nil {
		return
	}
	m.RetentionDeletedTotal.Add(float64(deleted))
}
