package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus collectors for gmvdash. It implements the
// recorder hooks of the API client, query cache, mutations and session
// guard.
type Metrics struct {
	registry *prometheus.Registry

	// Dashboard HTTP server.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Outbound API calls.
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Query cache.
	QueryFetchesTotal       *prometheus.CounterVec
	QueryCacheHitsTotal     *prometheus.CounterVec
	QueryDiscardedTotal     *prometheus.CounterVec
	QueryInvalidationsTotal *prometheus.CounterVec
	QuerySubscriptions      *prometheus.GaugeVec

	MutationsTotal *prometheus.CounterVec

	SessionTransitionsTotal *prometheus.CounterVec
	LoginThrottledTotal     prometheus.Counter

	LiveConnections prometheus.Gauge

	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_http_requests_total",
			Help: "Total number of dashboard HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gmvdash_http_request_duration_seconds",
			Help:    "Dashboard HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_api_requests_total",
			Help: "Total number of requests sent to the reporting API.",
		}, []string{"method", "status"}),

		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gmvdash_api_request_duration_seconds",
			Help:    "Reporting API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),

		QueryFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_query_fetches_total",
			Help: "Applied query fetches by result.",
		}, []string{"resource", "result"}),

		QueryCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_query_cache_hits_total",
			Help: "Reads served from a fresh cache entry.",
		}, []string{"resource"}),

		QueryDiscardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_query_discarded_total",
			Help: "Responses dropped because a newer invalidation or response superseded them.",
		}, []string{"resource"}),

		QueryInvalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_query_invalidations_total",
			Help: "Cache entries marked stale by mutations.",
		}, []string{"resource"}),

		QuerySubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gmvdash_query_subscriptions",
			Help: "Active query subscriptions.",
		}, []string{"resource"}),

		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_mutations_total",
			Help: "Mutations by name and result.",
		}, []string{"name", "result"}),

		SessionTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmvdash_session_transitions_total",
			Help: "Session state transitions by target state.",
		}, []string{"state"}),

		LoginThrottledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gmvdash_login_throttled_total",
			Help: "Login attempts rejected by the throttle.",
		}),

		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gmvdash_live_connections",
			Help: "Open live-view websocket connections.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gmvdash_server_start_time_seconds",
			Help: "Unix timestamp when the dashboard started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.QueryFetchesTotal,
		m.QueryCacheHitsTotal,
		m.QueryDiscardedTotal,
		m.QueryInvalidationsTotal,
		m.QuerySubscriptions,
		m.MutationsTotal,
		m.SessionTransitionsTotal,
		m.LoginThrottledTotal,
		m.LiveConnections,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCacheCollector exposes the query cache size.
func (m *Metrics) RegisterCacheCollector(size CacheSizeFunc) {
	m.registry.MustRegister(NewCacheCollector(size))
}

// ObserveRequest records one outbound API call. status 0 means no response.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.APIRequestsTotal.WithLabelValues(method, code).Inc()
	m.APIRequestDuration.WithLabelValues(method, code).Observe(d.Seconds())
}

func (m *Metrics) FetchDone(resource, result string) {
	m.QueryFetchesTotal.WithLabelValues(resource, result).Inc()
}

func (m *Metrics) CacheHit(resource string) {
	m.QueryCacheHitsTotal.WithLabelValues(resource).Inc()
}

func (m *Metrics) Discarded(resource string) {
	m.QueryDiscardedTotal.WithLabelValues(resource).Inc()
}

func (m *Metrics) Invalidated(resource string) {
	m.QueryInvalidationsTotal.WithLabelValues(resource).Inc()
}

func (m *Metrics) SubscriptionsChanged(resource string, delta int) {
	m.QuerySubscriptions.WithLabelValues(resource).Add(float64(delta))
}

func (m *Metrics) MutationDone(name, result string) {
	m.MutationsTotal.WithLabelValues(name, result).Inc()
}

func (m *Metrics) SessionTransition(state string) {
	m.SessionTransitionsTotal.WithLabelValues(state).Inc()
}

// IncLoginThrottled counts a login rejected by the throttle.
func (m *Metrics) IncLoginThrottled() {
	m.LoginThrottledTotal.Inc()
}

// ObserveHTTP records one dashboard request.
func (m *Metrics) ObserveHTTP(method, pattern string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(d.Seconds())
}
