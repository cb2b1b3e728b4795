package entitlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the entitlement tracker.
type Metrics struct {
	PaymentsTotal        *prometheus.CounterVec
	MessagesConsumed     prometheus.Counter
	ReconciliationsTotal *prometheus.CounterVec
	MessagesRemaining    *prometheus.GaugeVec
	PaymentsObserved     *prometheus.GaugeVec
}

// NewMetrics creates and registers all entitlement metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		PaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_payments_total",
				Help: "Payment submissions processed by the tracker",
			},
			[]string{"status"}, // status: accepted, rejected, wrong_network, no_wallet
		),

		MessagesConsumed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "entitlement_messages_consumed_total",
				Help: "Chat turns debited from wallet balances",
			},
		),

		ReconciliationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_reconciliations_total",
				Help: "On-chain verification passes",
			},
			[]string{"result"}, // result: scanned, cache_fallback, zeroed
		),

		MessagesRemaining: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "entitlement_messages_remaining",
				Help: "Unconsumed paid messages per wallet",
			},
			[]string{"wallet"},
		),

		PaymentsObserved: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "entitlement_payments_observed",
				Help: "Valid on-chain payments counted for a wallet at last scan",
			},
			[]string{"wallet"},
		),
	}
}
