package offq

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offq_queue_length",
			Help: "Number of actions waiting to be replayed",
		},
	)

	actionsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offq_actions_enqueued_total",
			Help: "Total actions accepted into the queue",
		},
	)

	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offq_actions_total",
			Help: "Replay attempts by outcome",
		},
		[]string{"outcome"},
	)

	passesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offq_passes_total",
			Help: "Sync passes by result (completed, halted, skipped)",
		},
		[]string{"result"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offq_send_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	connectivityTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offq_connectivity_transitions_total",
			Help: "Observed network usability transitions",
		},
		[]string{"direction"},
	)
)

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
