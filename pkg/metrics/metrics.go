package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasamarket_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jasamarket_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jasamarket_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestsInFlight reports HTTP requests currently being served.
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jasamarket_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// VerificationSubmissions counts provider verification submissions by result
	// (success|invalid|pending_exists|bucket_missing|upload_failed|insert_failed).
	VerificationSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasamarket_verification_submissions_total",
			Help: "Total number of provider verification submissions",
		},
		[]string{"result"},
	)

	// VerificationTransitions counts moderation decisions by target status and result.
	VerificationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasamarket_verification_transitions_total",
			Help: "Total number of verification moderation decisions",
		},
		[]string{"target", "result"},
	)

	// PendingVerifications reports the number of requests awaiting review.
	PendingVerifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jasamarket_pending_verifications",
			Help: "Number of verification requests awaiting review",
		},
	)

	// UploadBytes tracks the size of accepted ID card uploads.
	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jasamarket_verification_upload_bytes",
			Help:    "Size of uploaded identity card images",
			Buckets: prometheus.ExponentialBuckets(32*1024, 2, 10),
		},
	)

	// EventsPublished counts domain events handed to the broker by result (success|failure).
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasamarket_events_published_total",
			Help: "Total number of domain events published",
		},
		[]string{"event", "result"},
	)
)
