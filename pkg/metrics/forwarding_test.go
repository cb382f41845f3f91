package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardingMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewForwardingMetrics(reg)

	m.IncSettlement("processed")
	m.IncSettlement("duplicate")
	m.IncSettlement("duplicate")
	m.IncTransferAttempt("tip", "error")
	m.IncFinalized("partially_completed")
	m.ObserveLeg("base", 40*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "tipsplit_settlements_total", "outcome", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "tipsplit_transfer_attempts_total", "leg", "tip")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "tipsplit_splits_finalized_total", "status", "partially_completed")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	sum, err := fetchHistogramSum(mfs, "tipsplit_transfer_leg_duration_seconds", "leg", "base")
	require.NoError(t, err)
	assert.Greater(t, sum, float64(0))
}

func TestNilRegistererMetricsAreNoops(t *testing.T) {
	f := NewForwardingMetrics(nil)
	f.IncSettlement("processed")
	f.IncTransferAttempt("base", "ok")
	f.IncFinalized("completed")
	f.ObserveLeg("base", time.Second)

	var nilForwarding *ForwardingMetrics
	nilForwarding.IncSettlement("processed")

	c := NewCacheMetrics(nil)
	c.IncFallback("get")
	c.SetBacklog(3)
}

func TestCacheMetricsExportsFallbacksAndBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCacheMetrics(reg)

	m.IncFallback("get")
	m.IncFallback("")
	m.SetBacklog(4)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "tipsplit_cache_fallbacks_total", "operation", "get")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "tipsplit_cache_fallbacks_total", "operation", "unknown")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	backlog := findMetricFamily(mfs, "tipsplit_cache_invalidation_backlog")
	require.NotNil(t, backlog)
	require.Len(t, backlog.GetMetric(), 1)
	assert.Equal(t, float64(4), gaugeValue(backlog.GetMetric()[0]))
}

func gaugeValue(metric *dto.Metric) float64 {
	return metric.GetGauge().GetValue()
}
