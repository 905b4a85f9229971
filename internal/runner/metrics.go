package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"questward/internal/types"
)

// Metrics holds Prometheus metrics for the worker pool runner.
type Metrics struct {
	RunsCompleted *prometheus.CounterVec
	RunsSkipped   *prometheus.CounterVec
	Items         *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	WorkerAborts  *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers runner metrics. Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questward",
			Subsystem: "runner",
			Name:      "runs_completed_total",
			Help:      "Total coordinator runs completed, per task kind.",
		}, []string{"task_kind"}),
		RunsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questward",
			Subsystem: "runner",
			Name:      "runs_skipped_total",
			Help:      "Total triggers skipped because a run was already in progress.",
		}, []string{"task_kind"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questward",
			Subsystem: "runner",
			Name:      "items_processed_total",
			Help:      "Total account items processed, per task kind and outcome.",
		}, []string{"task_kind", "outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questward",
			Subsystem: "runner",
			Name:      "notifications_sent_total",
			Help:      "Total notifications delivered from runs, per task kind.",
		}, []string{"task_kind"}),
		WorkerAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questward",
			Subsystem: "runner",
			Name:      "worker_aborts_total",
			Help:      "Total workers that aborted (probe failure or failure ceiling).",
		}, []string{"task_kind", "worker"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "questward",
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Duration of each coordinator run.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800},
		}, []string{"task_kind"}),
	}

	reg.MustRegister(
		m.RunsCompleted,
		m.RunsSkipped,
		m.Items,
		m.Notifications,
		m.WorkerAborts,
		m.RunDuration,
	)

	return m
}

// ObserveRun records the counters of one finished run.
func (m *Metrics) ObserveRun(kind types.TaskKind, s StatsSummary, duration time.Duration) {
	k := string(kind)
	m.RunsCompleted.WithLabelValues(k).Inc()
	m.Items.WithLabelValues(k, "success").Add(float64(s.Succeeded))
	m.Items.WithLabelValues(k, "transient_failure").Add(float64(s.TransientFailures))
	m.Items.WithLabelValues(k, "terminal_failure").Add(float64(s.TerminalFailures))
	m.Notifications.WithLabelValues(k).Add(float64(s.NotificationsSent))
	m.RunDuration.WithLabelValues(k).Observe(duration.Seconds())
}
