package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	RequestsCreated  *prometheus.CounterVec
	RequestConflicts prometheus.Counter
	Responses        *prometheus.CounterVec
	Revocations      prometheus.Counter
	Expirations      prometheus.Counter
	ChecksPassed     *prometheus.CounterVec
	ChecksFailed     *prometheus.CounterVec
	CheckCacheHits   prometheus.Counter
	DispatchFailures *prometheus.CounterVec
	DispatchLatency  prometheus.Histogram
	EndpointLatency  *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentd_requests_created_total",
			Help: "Total number of consent requests created, labeled by channel",
		}, []string{"channel"}),
		RequestConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentd_request_conflicts_total",
			Help: "Total number of request attempts that returned an already-active record",
		}),
		Responses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentd_responses_total",
			Help: "Total number of consent responses recorded, labeled by decision",
		}, []string{"decision"}),
		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentd_revocations_total",
			Help: "Total number of consents revoked",
		}),
		Expirations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentd_expirations_total",
			Help: "Total number of grants reconciled to expired",
		}),
		ChecksPassed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentd_checks_passed_total",
			Help: "Total number of consent checks that passed, labeled by scope",
		}, []string{"scope"}),
		ChecksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentd_checks_failed_total",
			Help: "Total number of consent checks that failed, labeled by scope",
		}, []string{"scope"}),
		CheckCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentd_check_cache_hits_total",
			Help: "Total number of consent checks answered from cache",
		}),
		DispatchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentd_dispatch_failures_total",
			Help: "Total number of consent message deliveries that failed, labeled by channel",
		}, []string{"channel"}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "consentd_dispatch_latency_seconds",
			Help:    "Latency of consent message deliveries in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentd_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) IncrementRequestsCreated(channel string) {
	m.RequestsCreated.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncrementRequestConflicts() {
	m.RequestConflicts.Inc()
}

func (m *Metrics) IncrementResponses(decision string) {
	m.Responses.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementRevocations() {
	m.Revocations.Inc()
}

func (m *Metrics) IncrementExpirations() {
	m.Expirations.Inc()
}

func (m *Metrics) IncrementChecksPassed(scope string) {
	m.ChecksPassed.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncrementChecksFailed(scope string) {
	m.ChecksFailed.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncrementCheckCacheHits() {
	m.CheckCacheHits.Inc()
}

func (m *Metrics) IncrementDispatchFailures(channel string) {
	m.DispatchFailures.WithLabelValues(channel).Inc()
}

// ObserveDispatchLatency records the latency of a delivery attempt
func (m *Metrics) ObserveDispatchLatency(durationSeconds float64) {
	m.DispatchLatency.Observe(durationSeconds)
}

// ObserveEndpointLatency records the latency for a given endpoint
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}
