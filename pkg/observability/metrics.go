package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization pipeline
	AuthFailuresTotal     *prometheus.CounterVec
	TenantFailuresTotal   prometheus.Counter
	GateDenialsTotal      *prometheus.CounterVec
	RateLimitDecisions    *prometheus.CounterVec
	RateLimitTrackedKeys  prometheus.Gauge

	// Event bus
	EventsPublishedTotal *prometheus.CounterVec
	DeliveriesTotal      *prometheus.CounterVec
	DeliveryDuration     *prometheus.HistogramVec
	AsyncRejectedTotal   prometheus.Counter
	AsyncOverflowTotal   prometheus.Counter

	// Subscribers
	ActivityEntriesTotal prometheus.Counter
	RuleExecutionsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateops_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estateops_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateops_auth_failures_total",
				Help: "Rejected credentials by reason",
			},
			[]string{"reason"},
		),
		TenantFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "estateops_tenant_resolution_failures_total",
				Help: "Verified tokens carrying an unusable tenant id",
			},
		),
		GateDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateops_gate_denials_total",
				Help: "Requests rejected by scope or role gates",
			},
			[]string{"route", "requirement"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateops_ratelimit_decisions_total",
				Help: "Rate limiter outcomes",
			},
			[]string{"result"},
		),
		RateLimitTrackedKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "estateops_ratelimit_tracked_keys",
				Help: "Keys currently held by the in-memory limiter",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateops_events_published_total",
				Help: "Events published on the in-process bus",
			},
			[]string{"event_type"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateops_event_deliveries_total",
				Help: "Subscriber invocations by outcome",
			},
			[]string{"event_type", "subscriber", "result"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estateops_event_delivery_duration_seconds",
				Help:    "Subscriber invocation time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		AsyncRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "estateops_events_async_rejected_total",
				Help: "Post-response publishes refused because the dispatcher was closed",
			},
		),
		AsyncOverflowTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "estateops_events_async_overflow_total",
				Help: "Post-response publishes dispatched outside the full worker queue",
			},
		),
		ActivityEntriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "estateops_activity_entries_total",
				Help: "Activity log entries written",
			},
		),
		RuleExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateops_automation_rule_executions_total",
				Help: "Automation rule actions by outcome",
			},
			[]string{"action", "result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthFailuresTotal,
		m.TenantFailuresTotal,
		m.GateDenialsTotal,
		m.RateLimitDecisions,
		m.RateLimitTrackedKeys,
		m.EventsPublishedTotal,
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.AsyncRejectedTotal,
		m.AsyncOverflowTotal,
		m.ActivityEntriesTotal,
		m.RuleExecutionsTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthFailure counts a rejected credential
func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordTenantFailure counts an unusable tenant id
func (m *Metrics) RecordTenantFailure() {
	if m == nil {
		return
	}
	m.TenantFailuresTotal.Inc()
}

// RecordGateDenial counts a scope or role rejection
func (m *Metrics) RecordGateDenial(route, requirement string) {
	if m == nil {
		return
	}
	m.GateDenialsTotal.WithLabelValues(route, requirement).Inc()
}

// RecordRateLimit counts a limiter outcome ("allowed", "rejected", "error")
func (m *Metrics) RecordRateLimit(result string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(result).Inc()
}

// SetRateLimitKeys reports the number of tracked limiter keys
func (m *Metrics) SetRateLimitKeys(n int) {
	if m == nil {
		return
	}
	m.RateLimitTrackedKeys.Set(float64(n))
}

// RecordPublish counts a published event
func (m *Metrics) RecordPublish(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordDelivery counts one subscriber invocation
func (m *Metrics) RecordDelivery(eventType, subscriber, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(eventType, subscriber, result).Inc()
	m.DeliveryDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordAsyncRejected counts a publish refused after shutdown
func (m *Metrics) RecordAsyncRejected() {
	if m == nil {
		return
	}
	m.AsyncRejectedTotal.Inc()
}

// RecordAsyncOverflow counts a publish that found the worker queue full
func (m *Metrics) RecordAsyncOverflow() {
	if m == nil {
		return
	}
	m.AsyncOverflowTotal.Inc()
}

// RecordActivityEntry counts a written activity entry
func (m *Metrics) RecordActivityEntry() {
	if m == nil {
		return
	}
	m.ActivityEntriesTotal.Inc()
}

// RecordRuleExecution counts an automation action
func (m *Metrics) RecordRuleExecution(action, result string) {
	if m == nil {
		return
	}
	m.RuleExecutionsTotal.WithLabelValues(action, result).Inc()
}
