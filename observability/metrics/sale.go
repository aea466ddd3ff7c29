package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SaleMetrics struct {
	depositsAccepted prometheus.Counter
	depositsRejected *prometheus.CounterVec
	refundsIssued    prometheus.Counter
	tokensClaimed    prometheus.Counter
	raisedAmount     prometheus.Gauge
	finalized        prometheus.Counter
}

var (
	saleOnce     sync.Once
	saleRegistry *SaleMetrics
)

func Sale() *SaleMetrics {
	saleOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			depositsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sale_deposits_accepted_total",
				Help: "Count of accepted deposit operations.",
			}),
			depositsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_deposits_rejected_total",
				Help: "Count of rejected deposit operations by reason.",
			}, []string{"reason"}),
			refundsIssued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sale_refunds_issued_total",
				Help: "Count of refunds paid out after failure or cancellation.",
			}),
			tokensClaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sale_token_claims_total",
				Help: "Count of successful token withdrawals.",
			}),
			raisedAmount: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_raised_amount",
				Help: "Base currency raised by the campaign so far.",
			}),
			finalized: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sale_finalized_total",
				Help: "Count of finalization runs (at most one per campaign).",
			}),
		}
		prometheus.MustRegister(
			saleRegistry.depositsAccepted,
			saleRegistry.depositsRejected,
			saleRegistry.refundsIssued,
			saleRegistry.tokensClaimed,
			saleRegistry.raisedAmount,
			saleRegistry.finalized,
		)
	})
	return saleRegistry
}

func (m *SaleMetrics) ObserveDepositAccepted() {
	if m == nil {
		return
	}
	m.depositsAccepted.Inc()
}

func (m *SaleMetrics) ObserveDepositRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.depositsRejected.WithLabelValues(reason).Inc()
}

func (m *SaleMetrics) ObserveRefund() {
	if m == nil {
		return
	}
	m.refundsIssued.Inc()
}

func (m *SaleMetrics) ObserveTokenClaim() {
	if m == nil {
		return
	}
	m.tokensClaimed.Inc()
}

func (m *SaleMetrics) SetRaisedAmount(raised float64) {
	if m == nil {
		return
	}
	m.raisedAmount.Set(raised)
}

func (m *SaleMetrics) ObserveFinalized() {
	if m == nil {
		return
	}
	m.finalized.Inc()
}
