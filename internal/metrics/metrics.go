// Package metrics holds the engine's Prometheus collectors
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "payment_engine"

// Delivery results
const (
	DeliveryDelivered = "delivered"
	DeliveryRetry     = "retry"
	DeliveryFailed    = "failed"
	DeliveryDeferred  = "deferred"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded
type Metrics struct {
	PaymentsCreatedTotal     *prometheus.CounterVec
	PaymentTransitionsTotal  *prometheus.CounterVec
	ObserverErrorsTotal      prometheus.Counter
	ReconcileCycleDuration   prometheus.Histogram
	CyclesSkippedTotal       *prometheus.CounterVec
	WebhookDeliveriesTotal   *prometheus.CounterVec
	WebhookDeliveryDuration  prometheus.Histogram
	NotificationsFailedTotal *prometheus.CounterVec
}

// New registers every collector on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PaymentsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_created_total",
				Help:      "Payment requests created",
			},
			[]string{"currency"},
		),
		PaymentTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_transitions_total",
				Help:      "Lifecycle transitions by event",
			},
			[]string{"event"},
		),
		ObserverErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observer_errors_total",
				Help:      "Failed ledger address queries",
			},
		),
		ReconcileCycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_cycle_duration_seconds",
				Help:      "Duration of a full reconciliation cycle",
				Buckets:   prometheus.DefBuckets,
			},
		),
		CyclesSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_skipped_total",
				Help:      "Cycles skipped because the previous one was still running",
			},
			[]string{"loop"},
		),
		WebhookDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Webhook delivery attempts by result",
			},
			[]string{"event", "result"},
		),
		WebhookDeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_delivery_duration_seconds",
				Help:      "Duration of a single webhook POST",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		NotificationsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Notifications dropped after exhausting their attempts",
			},
			[]string{"event"},
		),
	}
}

func (m *Metrics) PaymentCreated(currency string) {
	if m == nil {
		return
	}
	m.PaymentsCreatedTotal.WithLabelValues(currency).Inc()
}

func (m *Metrics) Transition(event string) {
	if m == nil {
		return
	}
	m.PaymentTransitionsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserverError() {
	if m == nil {
		return
	}
	m.ObserverErrorsTotal.Inc()
}

func (m *Metrics) ReconcileCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileCycleDuration.Observe(d.Seconds())
}

func (m *Metrics) CycleSkipped(loop string) {
	if m == nil {
		return
	}
	m.CyclesSkippedTotal.WithLabelValues(loop).Inc()
}

func (m *Metrics) Delivery(event, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(event, result).Inc()
	m.WebhookDeliveryDuration.Observe(d.Seconds())
	if result == DeliveryFailed {
		m.NotificationsFailedTotal.WithLabelValues(event).Inc()
	}
}
