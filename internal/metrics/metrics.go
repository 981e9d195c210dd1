// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedherald"

var (
	SourceChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_checks_total",
			Help:      "Source check cycles by outcome",
		},
		[]string{"source", "status"}, // "completed", "deferred", "failed"
	)

	ReportsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_built_total",
			Help:      "Reports produced by source checks",
		},
		[]string{"source"},
	)

	ItemsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Malformed items skipped during checks",
		},
		[]string{"source"},
	)

	SourceNotBefore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_not_before_timestamp_seconds",
			Help:      "Unix time before which a throttled source will not be requested",
		},
		[]string{"source"},
	)

	PostsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Posts handed to a channel sender by result",
		},
		[]string{"channel", "result"}, // "sent", "failed"
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Posts waiting in a channel queue",
		},
		[]string{"channel"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
