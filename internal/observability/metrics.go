package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	PendingSessions   prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	CredentialResults *prometheus.CounterVec
	Transcriptions    *prometheus.CounterVec
	UpstreamErrors    *prometheus.CounterVec
	UpstreamLatency   *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PendingSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_sessions",
			Help:      "Number of interview session tokens awaiting credential exchange.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session token events by type.",
		}, []string{"event"}),
		CredentialResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_results_total",
			Help:      "Realtime credential issuance outcomes.",
		}, []string{"result"}),
		Transcriptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Candidate audio transcriptions by provider and result.",
		}, []string{"provider", "result"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream service errors by service and code.",
		}, []string{"service", "code"}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_ms",
			Help:      "Latency of upstream service calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		}, []string{"service"}),
	}
}

func (m *Metrics) ObserveUpstream(service string, d time.Duration) {
	m.UpstreamLatency.WithLabelValues(service).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
