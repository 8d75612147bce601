// Package metrics provides Prometheus metrics for lmgate.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lmgate"

// Generation modes.
const (
	ModeStream   = "stream"
	ModeBuffered = "buffered"
)

// Upstream error kinds.
const (
	ErrorKindStatus    = "status"
	ErrorKindTransport = "transport"
	ErrorKindMidStream = "mid_stream"
)

var (
	// RequestsTotal counts generation requests by mode and response status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"mode", "status"},
	)

	// RequestDuration measures generation request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of generation requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	// FragmentsTotal counts fragments relayed to clients.
	FragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Total number of text fragments decoded from upstream",
		},
		[]string{"mode"},
	)

	// UpstreamErrorsTotal counts upstream failures by kind.
	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of upstream failures",
		},
		[]string{"kind"},
	)

	// RecordsDroppedTotal counts generation records dropped because the
	// recorder queue was full.
	RecordsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Total number of generation records dropped by the recorder",
		},
	)
)

// RecordGeneration records a finished generation request.
func RecordGeneration(mode string, status int, fragments int, duration time.Duration) {
	RequestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(mode).Observe(duration.Seconds())
	FragmentsTotal.WithLabelValues(mode).Add(float64(fragments))
}

// RecordUpstreamError records an upstream failure.
func RecordUpstreamError(kind string) {
	UpstreamErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordDropped records a dropped generation record.
func RecordDropped() {
	RecordsDroppedTotal.Inc()
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
