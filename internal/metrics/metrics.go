package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "atstore"

// Metrics holds the collectors the services report to. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	webhooks            *prometheus.CounterVec
	ordersCreated       prometheus.Counter
	reservations        *prometheus.CounterVec
	unfulfilledPayments prometheus.Counter
	expired             prometheus.Counter
	purged              prometheus.Counter
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fulfillment", Name: "webhooks_total",
			Help: "Payment webhook calls by outcome code.",
		}, []string{"outcome"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "created_total",
			Help: "Pending orders created.",
		}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inventory", Name: "reservations_total",
			Help: "Reservation attempts by result.",
		}, []string{"result"}),
		unfulfilledPayments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unfulfilled_payments_total",
			Help: "Verified payments that found no available inventory and await manual reconciliation.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "expired_total",
			Help: "Pending orders transitioned to expired.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "purged_total",
			Help: "Expired orders deleted after the retention window.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.webhooks,
		m.ordersCreated,
		m.reservations,
		m.unfulfilledPayments,
		m.expired,
		m.purged,
		m.httpDuration,
	)
	return m
}

// WebhookHandled counts one webhook call.
func (m *Metrics) WebhookHandled(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

// OrderCreated counts one new order.
func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// Reservation counts one reservation attempt.
func (m *Metrics) Reservation(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
}

// UnfulfilledPayment counts a payment that could not be matched with stock.
func (m *Metrics) UnfulfilledPayment() {
	if m == nil {
		return
	}
	m.unfulfilledPayments.Inc()
}

// Expired adds n expired orders.
func (m *Metrics) Expired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

// Purged adds n purged orders.
func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

// ObserveHTTP records one request duration in seconds.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}
