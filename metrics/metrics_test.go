package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementRegistration(OutcomeSuccess)
	m.IncrementRegistration(OutcomeSuccess)
	m.IncrementRegistration(OutcomeConflict)
	m.IncrementPaymentOrder(OutcomeError)
	m.IncrementPaymentVerification(OutcomeMismatch)
	m.IncrementPaymentCancellation()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Registrations.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentOrders.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentVerifications.WithLabelValues(OutcomeMismatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentCancellations))
}

func TestObserveGatewayRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveGatewayRequest("CreateOrder", 300*time.Millisecond, nil)

	expected := `
# HELP event_gateway_request_duration_seconds Latency of payment gateway calls
# TYPE event_gateway_request_duration_seconds histogram
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="0.05"} 0
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="0.1"} 0
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="0.25"} 0
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="0.5"} 1
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="1"} 1
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="2.5"} 1
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="5"} 1
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="10"} 1
event_gateway_request_duration_seconds_bucket{operation="CreateOrder",le="+Inf"} 1
event_gateway_request_duration_seconds_sum{operation="CreateOrder"} 0.3
event_gateway_request_duration_seconds_count{operation="CreateOrder"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "event_gateway_request_duration_seconds"))
}

func TestNewTwiceWithSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
