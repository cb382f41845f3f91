package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks hot cache degradation.
type CacheMetrics struct {
	fallbacks *prometheus.CounterVec
	backlog   prometheus.Gauge
}

// NewCacheMetrics registers the cache metrics on the provided registerer.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tipsplit_cache_fallbacks_total",
		Help: "Cache operations that failed and fell through to the durable store.",
	}, []string{"operation"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tipsplit_cache_invalidation_backlog",
		Help: "Keys waiting to be evicted after a failed cache invalidation.",
	})
	reg.MustRegister(fallbacks, backlog)
	return &CacheMetrics{fallbacks: fallbacks, backlog: backlog}
}

// IncFallback counts a failed cache operation.
func (c *CacheMetrics) IncFallback(operation string) {
	if c == nil || c.fallbacks == nil {
		return
	}
	c.fallbacks.WithLabelValues(normalizeLabel(operation)).Inc()
}

// SetBacklog reports the current invalidation backlog size.
func (c *CacheMetrics) SetBacklog(size int) {
	if c == nil || c.backlog == nil {
		return
	}
	c.backlog.Set(float64(size))
}
