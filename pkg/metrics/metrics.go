// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the prescription ingestion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label for a successful ingestion.
const OutcomeSuccess = "success"

// Collector owns the metric vectors. Each collector registers its own
// vectors so tests can use a private registry.
type Collector struct {
	serviceName string
	gatherer    prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ingestionsTotal  *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
}

// NewCollector creates the vectors and registers them with reg.
// A nil reg uses a fresh private registry.
func NewCollector(serviceName string, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		serviceName: serviceName,
		gatherer:    reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		ingestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prescription_ingestions_total",
				Help: "Prescription uploads by outcome",
			},
			[]string{"outcome", "service"},
		),
		analysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vision_analysis_duration_seconds",
				Help:    "Duration of vision model calls in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"model", "status", "service"},
		),
	}

	reg.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.ingestionsTotal,
		c.analysisDuration,
	)
	return c
}

// RecordHTTPRequest records HTTP request metrics.
func (c *Collector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode), c.serviceName).Inc()
	c.httpRequestDuration.WithLabelValues(method, endpoint, c.serviceName).Observe(duration.Seconds())
}

// RecordIngestion counts one finished upload. outcome is OutcomeSuccess or an
// error code.
func (c *Collector) RecordIngestion(outcome string) {
	c.ingestionsTotal.WithLabelValues(outcome, c.serviceName).Inc()
}

// RecordAnalysis records the latency of one vision model call.
func (c *Collector) RecordAnalysis(model string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.analysisDuration.WithLabelValues(model, status, c.serviceName).Observe(duration.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
