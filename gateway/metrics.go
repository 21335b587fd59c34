package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend calls per endpoint and outcome. A nil *Metrics
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Total number of backend requests by endpoint and outcome.",
	}, []string{"endpoint", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "gateway",
		Name:      "request_duration_ms",
		Help:      "Backend request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"endpoint"})

	reg.MustRegister(requests, latency)
	return &Metrics{requests: requests, latency: latency}
}

func (m *Metrics) observe(endpoint, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, code).Inc()
	if d > 0 {
		m.latency.WithLabelValues(endpoint).Observe(float64(d.Milliseconds()))
	}
}
