package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
)

// ConsolidationMetrics records consolidated order engine activity.
type ConsolidationMetrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	syncInserted prometheus.Counter
	sentTotal    prometheus.Histogram
}

// NewConsolidationMetrics registers the engine metrics on the provided registerer.
func NewConsolidationMetrics(reg prometheus.Registerer) *ConsolidationMetrics {
	if reg == nil {
		return &ConsolidationMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotehub_consolidation_operations_total",
		Help: "Consolidated order operations by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quotehub_consolidation_operation_duration_seconds",
		Help:    "Duration of consolidated order operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	syncInserted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quotehub_consolidation_sync_items_inserted_total",
		Help: "Buckets inserted into drafts by sync.",
	})
	sentTotal := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotehub_consolidation_sent_total_cents",
		Help:    "Total value of consolidated quotes sent to suppliers, in minor units.",
		Buckets: prometheus.ExponentialBuckets(1000, 4, 8),
	})
	reg.MustRegister(operations, duration, syncInserted, sentTotal)
	return &ConsolidationMetrics{
		operations:   operations,
		duration:     duration,
		syncInserted: syncInserted,
		sentTotal:    sentTotal,
	}
}

// Observe records one operation. The outcome label is "ok" or the lowercased
// error code.
func (m *ConsolidationMetrics) Observe(operation string, err error, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, outcomeLabel(err)).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

// AddSyncInserted counts buckets inserted by a sync run.
func (m *ConsolidationMetrics) AddSyncInserted(n int) {
	if m == nil || m.syncInserted == nil || n <= 0 {
		return
	}
	m.syncInserted.Add(float64(n))
}

// ObserveSent records the total of a sent consolidated quote.
func (m *ConsolidationMetrics) ObserveSent(totalCents int) {
	if m == nil || m.sentTotal == nil {
		return
	}
	m.sentTotal.Observe(float64(totalCents))
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(pkgerrors.CodeOf(err).String())
}
