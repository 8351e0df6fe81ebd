package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeClosed   = "closed"
	OutcomeError    = "error"

	OutcomeVerified             = "verified"
	OutcomeMismatch             = "mismatch"
	OutcomeReconciliationFailed = "reconciliation_failed"
)

type Metrics struct {
	Registrations         *prometheus.CounterVec
	PaymentOrders         *prometheus.CounterVec
	PaymentVerifications  *prometheus.CounterVec
	PaymentCancellations  prometheus.Counter
	GatewayRequestSeconds *prometheus.HistogramVec
}

// New registers every collector with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "event_registrations_total",
			Help: "Registration submissions by outcome",
		}, []string{"outcome"}),
		PaymentOrders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "event_payment_orders_total",
			Help: "Payment orders requested from the gateway by outcome",
		}, []string{"outcome"}),
		PaymentVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "event_payment_verifications_total",
			Help: "Payment signature verifications by outcome",
		}, []string{"outcome"}),
		PaymentCancellations: factory.NewCounter(prometheus.CounterOpts{
			Name: "event_payment_cancellations_total",
			Help: "Checkouts dismissed before payment completed",
		}),
		GatewayRequestSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "event_gateway_request_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementRegistration(outcome string) {
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementPaymentOrder(outcome string) {
	m.PaymentOrders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementPaymentVerification(outcome string) {
	m.PaymentVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementPaymentCancellation() {
	m.PaymentCancellations.Inc()
}

// ObserveGatewayRequest matches payments.RequestObserver so it can be handed
// straight to the gateway client.
func (m *Metrics) ObserveGatewayRequest(operation string, elapsed time.Duration, _ error) {
	m.GatewayRequestSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}
