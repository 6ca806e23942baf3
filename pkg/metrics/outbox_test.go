package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutboxMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncPublished("consolidated_order_sent")
	m.IncPublished("consolidated_order_sent")
	m.IncRetried("consolidated_order_sent")
	m.IncDeadLettered("consolidated_order_cancelled", "max_attempts")
	m.IncDeadLettered("", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.published.WithLabelValues("consolidated_order_sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retried.WithLabelValues("consolidated_order_sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadLettered.WithLabelValues("consolidated_order_cancelled", "max_attempts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadLettered.WithLabelValues("unknown", "unknown")))
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	assert.NotPanics(t, func() {
		m.IncPublished("x")
		m.IncRetried("x")
		m.IncDeadLettered("x", "y")
	})
	assert.NotPanics(t, func() {
		NewOutboxMetrics(nil).IncPublished("x")
	})
}
