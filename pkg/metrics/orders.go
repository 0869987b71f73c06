package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
)

// OrderMetrics counts outcomes of the checkout, order transition and
// withdrawal operations. A nil receiver records nothing.
type OrderMetrics struct {
	checkouts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
}

// NewOrderMetrics registers the order core counters on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_total",
		Help:      "Checkout attempts by payment method and outcome.",
	}, []string{"payment_method", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by source state, target state and outcome.",
	}, []string{"from", "to", "outcome"})
	withdrawals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdraw_requests_total",
		Help:      "Withdrawal requests by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(checkouts, transitions, withdrawals)
	return &OrderMetrics{
		checkouts:   checkouts,
		transitions: transitions,
		withdrawals: withdrawals,
	}
}

// ObserveCheckout records a checkout attempt.
func (m *OrderMetrics) ObserveCheckout(method string, err error) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(method), Outcome(err)).Inc()
}

// ObserveTransition records an order status change attempt.
func (m *OrderMetrics) ObserveTransition(from, to string, err error) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), Outcome(err)).Inc()
}

// ObserveWithdraw records a withdrawal request attempt.
func (m *OrderMetrics) ObserveWithdraw(err error) {
	if m == nil || m.withdrawals == nil {
		return
	}
	m.withdrawals.WithLabelValues(Outcome(err)).Inc()
}

// Outcome maps an error onto a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
