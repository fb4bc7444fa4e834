// Package metrics exposes a Prometheus registry scoped to the gateway's
// three observable surfaces: HTTP request counts/latency, job state
// transitions, and resolver download outcomes.
//
// # Concurrency
//
// All recording methods delegate to prometheus client collectors, which are
// safe for concurrent use. Registry itself holds no mutable state beyond
// the collectors created at construction time.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors for one running gateway instance.
type Registry struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	jobTransitionsTotal *prometheus.CounterVec
	jobsActive          prometheus.Gauge

	resolverDownloadsTotal *prometheus.CounterVec
	resolverDownloadBytes  *prometheus.HistogramVec
}

var defaultLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// NewRegistry builds a fresh Prometheus registry under namespace.
func NewRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests handled by the gateway, by route and status.",
			},
			[]string{"method", "route", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds, by route.",
				Buckets:   defaultLatencyBuckets,
			},
			[]string{"method", "route"},
		),

		jobTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_transitions_total",
				Help:      "Job lifecycle transitions, by resulting state.",
			},
			[]string{"state"},
		),

		jobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_active",
				Help:      "Jobs currently queued or running.",
			},
		),

		resolverDownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_downloads_total",
				Help:      "Resolver model/custom-node download attempts, by outcome.",
			},
			[]string{"kind", "outcome"},
		),

		resolverDownloadBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolver_download_bytes",
				Help:      "Size in bytes of completed resolver downloads.",
				Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 10),
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.jobTransitionsTotal,
		r.jobsActive,
		r.resolverDownloadsTotal,
		r.resolverDownloadBytes,
	)

	return r
}

// HTTPMiddleware records request counts and latency for every route pattern
// matched by the mux. req.Pattern is only populated once ServeMux has routed
// the request, so it is read after next.ServeHTTP returns.
func (r *Registry) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)

		route := req.Pattern
		if route == "" {
			route = req.URL.Path
		}
		r.httpRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(sw.status)).Inc()
		r.httpRequestDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Handler exposes the registry for Prometheus scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordJobTransition increments the counter for a job reaching state.
func (r *Registry) RecordJobTransition(state string) {
	r.jobTransitionsTotal.WithLabelValues(state).Inc()
}

// SetJobsActive sets the current queued+running job count.
func (r *Registry) SetJobsActive(count int) {
	r.jobsActive.Set(float64(count))
}

// RecordResolverDownload records the outcome of one resolver download
// attempt (kind is "model" or "custom_node"; outcome is "ok", "skipped", or
// "failed").
func (r *Registry) RecordResolverDownload(kind, outcome string, bytes int64) {
	r.resolverDownloadsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "ok" && bytes > 0 {
		r.resolverDownloadBytes.WithLabelValues(kind).Observe(float64(bytes))
	}
}
