package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fulfillment"

// Metrics groups the collectors of the fulfillment service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ordersCreated   prometheus.Counter
	transitions     *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	gatewayAttempts *prometheus.CounterVec
	lowStockAlerts  prometheus.Counter
	rateLimited     prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Orders created with stock reserved.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_transitions_total",
			Help: "Committed order status transitions.",
		}, []string{"from", "to"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhook_events_total",
			Help: "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Detached notification tasks by outcome.",
		}, []string{"task", "outcome"}),
		gatewayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gateway_attempts_total",
			Help: "Outbound payment gateway attempts by outcome.",
		}, []string{"outcome"}),
		lowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "low_stock_alerts_total",
			Help: "Low-stock alerts raised.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Requests rejected by the webhook rate limiter.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ordersCreated, m.transitions, m.webhookEvents, m.notifications,
			m.gatewayAttempts, m.lowStockAlerts, m.rateLimited, m.httpRequests, m.httpDuration,
		)
	}
	return m
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Webhook outcomes: applied, duplicate, ignored, rate_limited, bad_signature, bad_payload, error.
func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(task string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.notifications.WithLabelValues(task, outcome).Inc()
}

func (m *Metrics) GatewayAttempt(outcome string) {
	if m == nil {
		return
	}
	m.gatewayAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LowStock() {
	if m == nil {
		return
	}
	m.lowStockAlerts.Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
