package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports samples as Prometheus metrics.
type PrometheusObserver struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	activeVUs prometheus.Gauge
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the xrayperf metrics with reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xrayperf_requests_total",
			Help: "Requests sent, by template and outcome.",
		}, []string{"template", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xrayperf_request_duration_seconds",
			Help:    "Request latency by template.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"template"}),
		activeVUs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xrayperf_active_vus",
			Help: "Virtual users currently running.",
		}),
	}
}

func (p *PrometheusObserver) ObserveSample(s Sample) {
	outcome := "success"
	if !s.Success {
		outcome = "failure"
	}
	p.requests.WithLabelValues(s.Name, outcome).Inc()
	p.duration.WithLabelValues(s.Name).Observe(s.Latency.Seconds())
}

func (p *PrometheusObserver) ObserveActiveVUs(n int) {
	p.activeVUs.Set(float64(n))
}
