package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "santier_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// RefreshAttempts counts refresh-token rotations by outcome
	// (rotated|expired|not_found|reuse).
	RefreshAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "santier_refresh_attempts_total",
			Help: "Total number of refresh token rotation attempts",
		},
		[]string{"outcome"},
	)

	// ReuseCascades counts session-family revocations triggered by reuse detection.
	ReuseCascades = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "santier_token_reuse_cascades_total",
			Help: "Total number of reuse-detection revocation cascades",
		},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "santier_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "santier_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
