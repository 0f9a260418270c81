// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for relay requests.
const (
	OutcomeOK              = "ok"
	OutcomeValidationError = "validation_error"
	OutcomeUpstreamError   = "upstream_error"
)

var (
	RelayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_chat_requests_total",
			Help: "Total number of POST /chat requests by outcome",
		},
		[]string{"outcome"},
	)

	RelayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_chat_duration_seconds",
			Help:    "Duration of POST /chat handling in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_failures_total",
			Help: "Backend call failures by reason",
		},
		[]string{"reason"},
	)

	RelayInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_chat_in_flight",
			Help: "Number of POST /chat requests currently waiting on the backend",
		},
	)

	TranscriptWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_transcript_write_failures_total",
			Help: "Transcript sink write failures by driver",
		},
		[]string{"driver"},
	)
)
