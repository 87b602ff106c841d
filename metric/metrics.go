// Package metric owns the Prometheus registry and the service's collectors.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "semcluster"

// Metrics holds every collector the service updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StageDuration   *prometheus.HistogramVec
	Clusterings     *prometheus.CounterVec
	ItemsPerRequest prometheus.Histogram
	ClustersFound   prometheus.Histogram
	NoiseRatio      prometheus.Histogram
	InFlight        prometheus.Gauge
	TextsEncoded    *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Time spent per clustering stage (encode, cluster, aggregate)",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
			},
			[]string{"stage"},
		),
		Clusterings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "clusterings_total",
				Help:      "Clustering requests by outcome",
			},
			[]string{"outcome"},
		),
		ItemsPerRequest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "items_per_request",
			Help:      "Number of texts per clustering request",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 12),
		}),
		ClustersFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "clusters_found",
			Help:      "Number of clusters per successful request",
			Buckets:   prometheus.LinearBuckets(0, 2, 16),
		}),
		NoiseRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "noise_ratio",
			Help:      "Fraction of items labelled noise per successful request",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "in_flight",
			Help:      "Clustering computations currently running",
		}),
		TextsEncoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embeddings",
				Name:      "texts_total",
				Help:      "Texts sent to the vector source by model",
			},
			[]string{"model"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal, m.RequestDuration, m.StageDuration, m.Clusterings,
		m.ItemsPerRequest, m.ClustersFound, m.NoiseRatio, m.InFlight, m.TextsEncoded,
	}
}

// ObserveStage records how long a pipeline stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordOutcome counts one clustering request. outcome is "ok" or an error kind.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Clusterings.WithLabelValues(outcome).Inc()
}

// RecordResult records the shape of a successful clustering
func (m *Metrics) RecordResult(items, clusters, noise int) {
	if m == nil {
		return
	}
	m.ItemsPerRequest.Observe(float64(items))
	m.ClustersFound.Observe(float64(clusters))
	if items > 0 {
		m.NoiseRatio.Observe(float64(noise) / float64(items))
	}
}

// RecordEncoded counts texts sent to model
func (m *Metrics) RecordEncoded(model string, n int) {
	if m == nil {
		return
	}
	m.TextsEncoded.WithLabelValues(model).Add(float64(n))
}

// RecordRequest counts one HTTP request
func (m *Metrics) RecordRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, statusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Registry pairs a private Prometheus registry with the service metrics
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry registers the service metrics plus Go runtime and process
// collectors on a fresh registry
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	reg.MustRegister(m.collectors()...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{prometheusRegistry: reg, Metrics: m}
}

// PrometheusRegistry returns the underlying registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler serves the registry in the Prometheus text or OpenMetrics format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
