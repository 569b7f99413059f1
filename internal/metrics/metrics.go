package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weatherbit-service/internal/weather"
	"github.com/i474232898/weatherbit-service/internal/weather/providers"
)

// Recorder collects refresh, fetch, cache and HTTP metrics.
type Recorder interface {
	weather.RefreshObserver
	providers.FetchObserver

	IncHTTPRequests(route string, status int)
	ObserveHTTPDuration(route string, d time.Duration)
	Handler() http.Handler
}

type PrometheusRecorder struct {
	registry *prometheus.Registry

	refreshTotal     *prometheus.CounterVec
	refreshDuration  *prometheus.HistogramVec
	lastSuccess      *prometheus.GaugeVec
	fetchTotal       *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpRequestTimes *prometheus.HistogramVec
}

// New returns a Prometheus recorder on a private registry, or a no-op
// recorder when enabled is false.
func New(enabled bool) Recorder {
	if !enabled {
		return &noopRecorder{}
	}
	return NewPrometheus(prometheus.NewRegistry())
}

// NewPrometheus registers every series on reg.
func NewPrometheus(reg *prometheus.Registry) *PrometheusRecorder {
	factory := promauto.With(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &PrometheusRecorder{
		registry: reg,

		refreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherbit_refresh_total",
			Help: "Coordinator refresh cycles by outcome",
		}, []string{"entry", "outcome"}),

		refreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weatherbit_refresh_duration_seconds",
			Help:    "Duration of coordinator refresh cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"entry"}),

		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "weatherbit_last_success_timestamp_seconds",
			Help: "Unix time of the last published snapshot",
		}, []string{"entry"}),

		fetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherbit_fetch_total",
			Help: "Upstream Weatherbit requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weatherbit_fetch_duration_seconds",
			Help:    "Upstream Weatherbit request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherbit_cache_hits_total",
			Help: "Response cache hits",
		}, []string{"endpoint"}),

		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherbit_cache_misses_total",
			Help: "Response cache misses",
		}, []string{"endpoint"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherbit_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		httpRequestTimes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weatherbit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *PrometheusRecorder) ObserveRefresh(entryID, outcome string, d time.Duration) {
	m.refreshTotal.WithLabelValues(entryID, outcome).Inc()
	if outcome == weather.OutcomeSkipped {
		return
	}
	m.refreshDuration.WithLabelValues(entryID).Observe(d.Seconds())
	if outcome == weather.OutcomeOK {
		m.lastSuccess.WithLabelValues(entryID).SetToCurrentTime()
	}
}

func (m *PrometheusRecorder) ObserveFetch(endpoint, outcome string, d time.Duration) {
	m.fetchTotal.WithLabelValues(endpoint, outcome).Inc()
	m.fetchDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *PrometheusRecorder) ObserveCache(endpoint string, hit bool) {
	if hit {
		m.cacheHits.WithLabelValues(endpoint).Inc()
		return
	}
	m.cacheMisses.WithLabelValues(endpoint).Inc()
}

func (m *PrometheusRecorder) IncHTTPRequests(route string, status int) {
	m.httpRequests.WithLabelValues(route, httpStatusBucket(status)).Inc()
}

func (m *PrometheusRecorder) ObserveHTTPDuration(route string, d time.Duration) {
	m.httpRequestTimes.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the private registry in the Prometheus text format.
func (m *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// noopRecorder is used when metrics are disabled.
type noopRecorder struct{}

func (n *noopRecorder) ObserveRefresh(_, _ string, _ time.Duration)   {}
func (n *noopRecorder) ObserveFetch(_, _ string, _ time.Duration)     {}
func (n *noopRecorder) ObserveCache(_ string, _ bool)                 {}
func (n *noopRecorder) IncHTTPRequests(_ string, _ int)               {}
func (n *noopRecorder) ObserveHTTPDuration(_ string, _ time.Duration) {}
func (n *noopRecorder) Handler() http.Handler                         { return http.NotFoundHandler() }
