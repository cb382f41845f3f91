package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics covers the cron worker: per-job run timing and outcome, and
// what each split sweep did to the rows it scanned.
type CronJobMetrics struct {
	runs     *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	swept    *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
}

// NewCronJobMetrics registers the cron metrics on reg. A nil reg yields a no-op recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tipsplit_cron_job_duration_seconds",
			Help:    "Duration of cron jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipsplit_cron_job_runs_total",
			Help: "Cron job executions, by job and result.",
		}, []string{"job", "result"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipsplit_split_sweep_rows_total",
			Help: "Splits touched by the expiry sweep: expired, released, skipped or failed.",
		}, []string{"action"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tipsplit_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of each job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.outcomes, m.swept, m.lastRun)
	return m
}

func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a successful run and stamps its completion time.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.outcomes == nil {
		return
	}
	job = normalizeLabel(job)
	c.outcomes.WithLabelValues(job, "success").Inc()
	c.lastRun.WithLabelValues(job).SetToCurrentTime()
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.outcomes == nil {
		return
	}
	c.outcomes.WithLabelValues(normalizeLabel(job), "failure").Inc()
}

// AddSwept records n rows handled by a sweep with the given action.
func (c *CronJobMetrics) AddSwept(action string, n int) {
	if c == nil || c.swept == nil || n <= 0 {
		return
	}
	c.swept.WithLabelValues(normalizeLabel(action)).Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
