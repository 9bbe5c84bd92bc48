// Package metrics registers the engine's Prometheus collectors. Order
// and payment counters are fed from a bus subscriber (every state
// transition of interest already publishes a domain event), wallet-auth
// and rate-limit counters from the HTTP adapter, and query timings from
// the storage backends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reconciliation engine.
type Metrics struct {
	// Order metrics
	OrdersIngestedTotal *prometheus.CounterVec
	OrdersPaidTotal     *prometheus.CounterVec
	OrdersAnnulledTotal *prometheus.CounterVec
	OrderClaimsTotal    prometheus.Counter

	// Payment metrics
	PaymentsReceivedTotal  *prometheus.CounterVec
	PaymentsConfirmedTotal *prometheus.CounterVec
	PaymentAmountTotal     *prometheus.CounterVec

	// Wallet-auth metrics
	WalletAuthAttemptsTotal *prometheus.CounterVec
	WalletAuthRejectedTotal *prometheus.CounterVec

	// Expiry worker metrics
	ExpiryTickTotal    prometheus.Counter
	OrdersExpiredTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec

	// HTTP demo adapter metrics
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		OrdersIngestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_orders_ingested_total",
				Help: "Total number of orders ingested, by initial status",
			},
			[]string{"initial_status"},
		),
		OrdersPaidTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_orders_paid_total",
				Help: "Total number of orders transitioned to Paid, by currency",
			},
			[]string{"currency"},
		),
		OrdersAnnulledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_orders_annulled_total",
				Help: "Total number of orders annulled, by terminal status",
			},
			[]string{"terminal_status"},
		),
		OrderClaimsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reconciler_order_claims_total",
				Help: "Total number of successful order claims",
			},
		),
		PaymentsReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_payments_received_total",
				Help: "Total number of payments accepted into Received status",
			},
			[]string{"payment_type"},
		),
		PaymentsConfirmedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_payments_confirmed_total",
				Help: "Total number of payments transitioned to Confirmed or Cancelled",
			},
			[]string{"new_status"},
		),
		PaymentAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_payment_amount_microtari_total",
				Help: "Total payment amount received, in MicroTari",
			},
			[]string{"payment_type"},
		),
		WalletAuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_wallet_auth_attempts_total",
				Help: "Total number of wallet notification admission attempts",
			},
			[]string{"outcome"},
		),
		WalletAuthRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_wallet_auth_rejected_total",
				Help: "Total number of rejected wallet notifications, by reason",
			},
			[]string{"reason"},
		),
		ExpiryTickTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reconciler_expiry_ticks_total",
				Help: "Total number of expiry worker ticks",
			},
		),
		OrdersExpiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_orders_expired_total",
				Help: "Total number of orders expired by the expiry worker, by prior status",
			},
			[]string{"prior_status"},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconciler_db_query_duration_seconds",
				Help:    "Database query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_rate_limit_hits_total",
				Help: "Total number of requests rejected by the HTTP demo adapter's rate limiter, by limit type",
			},
			[]string{"limit_type"},
		),
	}
}

// ObservePaymentReceived records a new payment credited to an address.
func (m *Metrics) ObservePaymentReceived(paymentType string, amountMicroTari int64) {
	m.PaymentsReceivedTotal.WithLabelValues(paymentType).Inc()
	m.PaymentAmountTotal.WithLabelValues(paymentType).Add(float64(amountMicroTari))
}

// ObserveWalletAuthRejected records a rejected wallet notification.
func (m *Metrics) ObserveWalletAuthRejected(reason string) {
	m.WalletAuthAttemptsTotal.WithLabelValues("rejected").Inc()
	m.WalletAuthRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveWalletAuthAccepted records an accepted wallet notification.
func (m *Metrics) ObserveWalletAuthAccepted() {
	m.WalletAuthAttemptsTotal.WithLabelValues("accepted").Inc()
}

// ObserveDBQuery records a database query's duration.
func (m *Metrics) ObserveDBQuery(operation, backend string, d time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(d.Seconds())
}

// ObserveRateLimit records a request rejected by the rate limiter.
func (m *Metrics) ObserveRateLimit(limitType string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}
