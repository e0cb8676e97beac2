package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job pipeline metrics
	JobsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comets_batch_jobs_received_total",
			Help: "Total number of job messages leased from the queue",
		},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comets_batch_jobs_completed_total",
			Help: "Total number of jobs finished, by outcome",
		},
		[]string{"outcome"},
	)

	MalformedEnvelopes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comets_batch_malformed_envelopes_total",
			Help: "Total number of message bodies that failed to parse",
		},
	)

	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comets_batch_execution_duration_seconds",
			Help:    "Duration of batch model execution in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Heartbeat metrics
	HeartbeatExtensions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comets_batch_heartbeat_extensions_total",
			Help: "Total number of successful visibility extensions",
		},
	)

	HeartbeatFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comets_batch_heartbeat_failures_total",
			Help: "Total number of failed visibility extensions",
		},
	)

	// Staging metrics
	InputBytesStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comets_batch_input_bytes_staged_total",
			Help: "Total bytes of input artifacts uploaded to the blob store",
		},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comets_batch_notifications_sent_total",
			Help: "Total number of notification emails sent, by template",
		},
		[]string{"template"},
	)

	NotificationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comets_batch_notification_errors_total",
			Help: "Total number of notification delivery failures",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comets_batch_rate_limit_hits_total",
			Help: "Total number of submissions rejected by the rate limiter",
		},
	)
)
