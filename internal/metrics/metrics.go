// Package metrics exposes Prometheus instrumentation for the listing
// pipeline: batch processing, draft generation and publish outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	batchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listforge_batches_processed_total",
		Help: "Photo batches processed by terminal status",
	}, []string{"status"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listforge_batch_processing_duration_seconds",
		Help:    "Wall time from claiming a batch to its terminal status",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~1000s
	})

	clustersFormed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listforge_clusters_per_batch",
		Help:    "Item clusters formed per processed batch",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	draftsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listforge_drafts_generated_total",
		Help: "Drafts generated, by validation verdict",
	}, []string{"verdict"})

	validationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listforge_validation_failures_total",
		Help: "Validation gate failures by field",
	}, []string{"field"})

	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listforge_publish_attempts_total",
		Help: "Publish attempts by outcome",
	}, []string{"outcome"})

	publishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listforge_publish_duration_seconds",
		Help:    "Publish attempt duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17m
	})

	backoffMultiplier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listforge_marketplace_backoff_multiplier",
		Help: "Current adaptive backoff multiplier on marketplace actions",
	})
)

// BatchProcessed records one batch reaching a terminal state.
func BatchProcessed(status string, duration time.Duration, clusters int) {
	batchesProcessed.WithLabelValues(status).Inc()
	batchDuration.Observe(duration.Seconds())
	if clusters > 0 {
		clustersFormed.Observe(float64(clusters))
	}
}

// DraftGenerated records one generated draft and its verdict.
func DraftGenerated(publishReady bool) {
	verdict := "ready"
	if !publishReady {
		verdict = "needs_review"
	}
	draftsGenerated.WithLabelValues(verdict).Inc()
}

// ValidationFailure records one failed validation rule.
func ValidationFailure(field string) {
	validationFailures.WithLabelValues(field).Inc()
}

// PublishAttempt records one publish attempt outcome.
func PublishAttempt(outcome string, duration time.Duration) {
	publishAttempts.WithLabelValues(outcome).Inc()
	publishDuration.Observe(duration.Seconds())
}

// SetBackoffMultiplier mirrors the pacer's current backoff level.
func SetBackoffMultiplier(m int) {
	backoffMultiplier.Set(float64(m))
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
