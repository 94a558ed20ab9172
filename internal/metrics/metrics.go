// Package metrics exposes the worker's Prometheus gauges and counters,
// following pkg/metrics/metrics.go's GaugeVec/CounterVec declarations
// and promhttp.Handler wiring, trimmed to the scheduler/job counters
// this domain actually produces.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtsync_worker_jobs_total",
			Help: "Total number of sync attempts completed, by mirror and final status.",
		},
		[]string{"mirror", "status"},
	)

	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtsync_worker_jobs_running",
			Help: "Number of mirrors currently Syncing or PreSyncing.",
		},
	)

	ScheduleQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtsync_worker_schedule_queue_depth",
			Help: "Number of entries currently in the schedule queue.",
		},
	)

	ManagerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtsync_worker_manager_request_duration_seconds",
			Help:    "Latency of HTTP requests the worker makes to a manager.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal, JobsRunning, ScheduleQueueDepth, ManagerRequestDuration)
}

// Handler returns the promhttp handler for mounting on the worker's
// control HTTP server.
func Handler() http.Handler {
	return promhttp.Handler()
}
