// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auth"

// Metrics is safe to use as a nil pointer; all recorders become no-ops.
type Metrics struct {
	reg prometheus.Gatherer

	loginsTotal     *prometheus.CounterVec
	callbacksTotal  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		loginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_started_total",
			Help:      "Authorization URLs issued, by provider.",
		}, []string{"provider"}),
		callbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "OAuth callbacks by provider, outcome and the step reached.",
		}, []string{"provider", "outcome", "step"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of calls to identity providers.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(m.loginsTotal, m.callbacksTotal, m.providerLatency, m.httpRequests, m.httpDuration)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) LoginStarted(provider string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(provider).Inc()
}

// CallbackFinished records the outcome ("success" or an error kind) and the
// last step the flow completed.
func (m *Metrics) CallbackFinished(provider, outcome, step string) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(provider, outcome, step).Inc()
}

func (m *Metrics) ObserveProvider(provider, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(provider, operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
