// Package telemetry exposes Prometheus metrics for the job lifecycle
// and the notification fan-out.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsSubmitted counts jobs accepted and enqueued.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagen_jobs_submitted_total",
		Help: "Total number of jobs submitted",
	})

	// JobsCompleted counts jobs that reached finished.
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagen_jobs_completed_total",
		Help: "Total number of jobs that finished successfully",
	})

	// JobsFailed counts jobs that reached failed.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagen_jobs_failed_total",
		Help: "Total number of jobs that failed",
	})

	// ActiveStreams tracks open push connections (WebSocket, legacy SSE
	// and streamable tool-call streams).
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediagen_active_streams",
		Help: "Number of currently open event stream connections",
	})

	// EventsDelivered counts fan-out events delivered to subscribers.
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagen_events_delivered_total",
		Help: "Total number of job events delivered to subscribers",
	})

	// EventsDropped counts fan-out events dropped on full subscriber
	// buffers. Slow consumers recover via the read path.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagen_events_dropped_total",
		Help: "Total number of job events dropped due to slow subscribers",
	})

	// KeepAlivesSent counts keep-alive frames broadcast to streams.
	KeepAlivesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagen_keepalives_sent_total",
		Help: "Total number of keep-alive frames sent to open streams",
	})

	// QueueDepth reports the number of jobs waiting for a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediagen_queue_depth",
		Help: "Number of jobs currently waiting in the task queue",
	})

	// JobDuration observes wall-clock execution time per job kind.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediagen_job_duration_seconds",
		Help:    "Job execution duration by kind",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
