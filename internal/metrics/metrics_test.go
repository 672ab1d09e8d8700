package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrderCreated()
	m.OrderCreated()
	m.Transition("pending_payment", "paid")
	m.Notification("confirmation_email", errors.New("smtp down"))
	m.Notification("confirmation_email", nil)
	m.HTTPRequest("GET", "/orders/{id}", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("pending_payment", "paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("confirmation_email", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/orders/{id}", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderCreated()
		m.Transition("a", "b")
		m.Webhook("applied")
		m.Notification("x", nil)
		m.GatewayAttempt("ok")
		m.LowStock()
		m.RateLimited()
		m.HTTPRequest("GET", "/", 200, time.Second)
	})
}
