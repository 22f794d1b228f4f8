package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transition results reported on order_transitions_total.
const (
	TransitionApplied       = "applied"
	TransitionRejected      = "rejected"
	TransitionPersistFailed = "persist_failed"
	TransitionStale         = "stale"
)

// Checkout results reported on order_checkouts_total.
const (
	CheckoutPlaced   = "placed"
	CheckoutReplayed = "replayed"
	CheckoutRejected = "rejected"
	CheckoutFailed   = "failed"
)

// OrderMetrics counts lifecycle transitions by edge and outcome.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	checkouts   *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions by source, target and result.",
	}, []string{"from", "to", "result"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_checkouts_total",
		Help: "Checkout attempts by payment method and result.",
	}, []string{"payment_method", "result"})
	reg.MustRegister(transitions, checkouts)
	return &OrderMetrics{transitions: transitions, checkouts: checkouts}
}

// ObserveTransition counts one transition attempt.
func (m *OrderMetrics) ObserveTransition(from, to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), result).Inc()
}

// ObserveCheckout counts one checkout attempt.
func (m *OrderMetrics) ObserveCheckout(paymentMethod, result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(paymentMethod), result).Inc()
}
