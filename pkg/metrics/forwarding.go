package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ForwardingMetrics tracks settlement handling and outbound transfer legs.
type ForwardingMetrics struct {
	settlements *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	finalized   *prometheus.CounterVec
	legDuration *prometheus.HistogramVec
}

// NewForwardingMetrics registers the forwarding metrics on the provided registerer.
func NewForwardingMetrics(reg prometheus.Registerer) *ForwardingMetrics {
	if reg == nil {
		return &ForwardingMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tipsplit_settlements_total",
		Help: "Settlement notifications handled, by outcome.",
	}, []string{"outcome"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tipsplit_transfer_attempts_total",
		Help: "Outbound transfer attempts, by leg and result.",
	}, []string{"leg", "result"})
	finalized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tipsplit_splits_finalized_total",
		Help: "Splits moved to a final forwarding status.",
	}, []string{"status"})
	legDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tipsplit_transfer_leg_duration_seconds",
		Help:    "Wall time spent on a transfer leg including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"leg"})
	reg.MustRegister(settlements, attempts, finalized, legDuration)
	return &ForwardingMetrics{
		settlements: settlements,
		attempts:    attempts,
		finalized:   finalized,
		legDuration: legDuration,
	}
}

// IncSettlement counts a handled settlement notification.
func (f *ForwardingMetrics) IncSettlement(outcome string) {
	if f == nil || f.settlements == nil {
		return
	}
	f.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransferAttempt counts one attempt on a transfer leg.
func (f *ForwardingMetrics) IncTransferAttempt(leg, result string) {
	if f == nil || f.attempts == nil {
		return
	}
	f.attempts.WithLabelValues(normalizeLabel(leg), normalizeLabel(result)).Inc()
}

// IncFinalized counts a split reaching the given status.
func (f *ForwardingMetrics) IncFinalized(status string) {
	if f == nil || f.finalized == nil {
		return
	}
	f.finalized.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObserveLeg records how long a transfer leg took.
func (f *ForwardingMetrics) ObserveLeg(leg string, duration time.Duration) {
	if f == nil || f.legDuration == nil {
		return
	}
	f.legDuration.WithLabelValues(normalizeLabel(leg)).Observe(duration.Seconds())
}
