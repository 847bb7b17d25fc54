// Package metrics provides Prometheus metrics for the catalog pipeline
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog store
	CatalogProducts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lendmatch_catalog_products",
			Help: "Number of products in the current catalog snapshot",
		},
		[]string{"country"},
	)

	CatalogMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendmatch_catalog_mutations_total",
			Help: "Catalog mutations by action and whether the signature changed",
		},
		[]string{"action", "changed"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendmatch_records_dropped_total",
			Help: "Upstream records dropped during mapping or normalization",
		},
		[]string{"stage"},
	)

	// Upstream
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendmatch_upstream_requests_total",
			Help: "Requests made to the staff backend by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lendmatch_upstream_request_duration_seconds",
			Help:    "Duration of staff backend requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Client sync
	SyncDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendmatch_sync_decisions_total",
			Help: "Client sync outcomes (network, cache, stale-cache, forced, error)",
		},
		[]string{"decision"},
	)

	// Notifications
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendmatch_webhook_deliveries_total",
			Help: "Webhook deliveries to client apps by outcome",
		},
		[]string{"outcome"},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lendmatch_event_subscribers",
			Help: "Open server-sent event connections",
		},
	)

	// Recommendations
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lendmatch_recommendation_duration_seconds",
			Help:    "Time taken to score a catalog",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)
)

// RecordUpstream records one staff backend call
func RecordUpstream(outcome string, duration time.Duration) {
	UpstreamRequests.WithLabelValues(outcome).Inc()
	UpstreamDuration.Observe(duration.Seconds())
}

// RecordCatalog publishes per-country product counts
func RecordCatalog(breakdown map[string]int) {
	CatalogProducts.Reset()
	for country, count := range breakdown {
		CatalogProducts.WithLabelValues(country).Set(float64(count))
	}
}

// RecordMutation counts one catalog mutation
func RecordMutation(action string, changed bool) {
	label := "false"
	if changed {
		label = "true"
	}
	CatalogMutations.WithLabelValues(action, label).Inc()
}
