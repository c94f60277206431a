package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// CronJobMetrics covers the leader-elected cron worker. A nil receiver
// records nothing.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	leader   prometheus.Gauge
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job executions by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Cron job wall time.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		leader: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cron_leader",
			Help: "1 while this worker holds the cron leader lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.leader)
	return m
}

// ObserveRun records one execution of job. A non-nil err counts as a failure.
func (c *CronJobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	c.runs.WithLabelValues(job, result).Inc()
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (c *CronJobMetrics) SetLeader(leading bool) {
	if c == nil || c.leader == nil {
		return
	}
	if leading {
		c.leader.Set(1)
		return
	}
	c.leader.Set(0)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
