package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("reservation-expiry", 250*time.Millisecond, nil)
	m.ObserveRun("reservation-expiry", 10*time.Millisecond, errors.New("db down"))
	m.ObserveRun("", time.Millisecond, nil)
	m.SetLeader(true)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchRunCount(mfs, "reservation-expiry", resultSuccess)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	got, err = fetchRunCount(mfs, "reservation-expiry", resultFailure)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	got, err = fetchRunCount(mfs, "unknown", resultSuccess)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "reservation-expiry")
	require.NoError(t, err)
	assert.InDelta(t, 0.26, sum, 0.001)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.leader))
	m.SetLeader(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.leader))
}

func fetchRunCount(mfs []*dto.MetricFamily, job, result string) (float64, error) {
	mf := findMetricFamily(mfs, "cron_job_runs_total")
	if mf == nil {
		return 0, fmt.Errorf("cron_job_runs_total not found")
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "job", job) && matchesLabel(metric.GetLabel(), "result", result) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("no run series for job=%s result=%s", job, result)
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

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "unknown", normalizeLabel(""))
	assert.Equal(t, "voucher_sold", normalizeLabel("voucher_sold"))

	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncDLQ("", "")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "outbox_dlq_total", "event_type", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}
