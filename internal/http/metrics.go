package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. It doubles as the
// conversion telemetry recorder so the converter stays free of any
// Prometheus dependency.
type Metrics struct {
	ResolutionsTotal    *prometheus.CounterVec
	ConversionsTotal    *prometheus.CounterVec
	CacheHitsTotal      *prometheus.CounterVec
	ProviderCallsTotal  *prometheus.CounterVec
	PollRecoveriesTotal prometheus.Counter
	RejectedTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunebridge_resolutions_total",
				Help: "Total number of link resolutions",
			},
			[]string{"provider", "kind", "status"},
		),
		ConversionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunebridge_conversions_total",
				Help: "Total number of entity conversions",
			},
			[]string{"target", "status"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunebridge_cache_hits_total",
				Help: "Total number of conversions served from the store",
			},
			[]string{"kind"},
		),
		ProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunebridge_provider_calls_total",
				Help: "Total number of outbound provider API calls",
			},
			[]string{"provider", "status"},
		),
		PollRecoveriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tunebridge_poll_recoveries_total",
				Help: "Total number of conversions recovered from a concurrent writer",
			},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunebridge_admission_rejected_total",
				Help: "Total number of requests rejected by the admission gate",
			},
			[]string{"class"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunebridge_request_duration_seconds",
				Help:    "Time spent serving API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	reg.MustRegister(
		metrics.ResolutionsTotal,
		metrics.ConversionsTotal,
		metrics.CacheHitsTotal,
		metrics.ProviderCallsTotal,
		metrics.PollRecoveriesTotal,
		metrics.RejectedTotal,
		metrics.RequestDuration,
	)

	return metrics
}

func (m *Metrics) RecordResolution(provider, kind, status string) {
	m.ResolutionsTotal.WithLabelValues(provider, kind, status).Inc()
}

func (m *Metrics) RecordConversion(target, status string) {
	m.ConversionsTotal.WithLabelValues(target, status).Inc()
}

func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHitsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordProviderCall(provider, status string) {
	m.ProviderCallsTotal.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordPollRecovery() {
	m.PollRecoveriesTotal.Inc()
}

func (m *Metrics) RecordRejection(class string) {
	m.RejectedTotal.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveRequest(endpoint string, duration time.Duration) {
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
