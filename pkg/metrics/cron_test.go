package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := counterWithLabels(mfs, "tipsplit_cron_job_runs_total", map[string]string{"job": job, "result": "success"}); got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got := counterWithLabels(mfs, "tipsplit_cron_job_runs_total", map[string]string{"job": job, "result": "failure"}); got != 2 {
		t.Fatalf("expected failure=2, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "tipsplit_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	if mf := findMetricFamily(mfs, "tipsplit_cron_job_last_success_timestamp_seconds"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() <= 0 {
		t.Fatalf("expected last success timestamp to be set")
	}
}

func TestCronJobMetricsCountsSweptRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.AddSwept("expired", 3)
	metrics.AddSwept("released", 1)
	metrics.AddSwept("skipped", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "tipsplit_split_sweep_rows_total", "action", "expired"); err != nil || got != 3 {
		t.Fatalf("expected expired=3, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "tipsplit_split_sweep_rows_total", "action", "released"); err != nil || got != 1 {
		t.Fatalf("expected released=1, got %f (%v)", got, err)
	}
	if _, err := fetchCounterValue(mfs, "tipsplit_split_sweep_rows_total", "action", "skipped"); err == nil {
		t.Fatalf("zero adds should not create a series")
	}

	var nilMetrics *CronJobMetrics
	nilMetrics.AddSwept("expired", 1)
	NewCronJobMetrics(nil).IncSuccess("job")
}

func counterWithLabels(mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return -1
	}
	for _, metric := range mf.GetMetric() {
		matched := 0
		for k, v := range labels {
			if matchesLabel(metric.GetLabel(), k, v) {
				matched++
			}
		}
		if matched == len(labels) {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
