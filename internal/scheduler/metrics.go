package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the cron scheduler.
type Metrics struct {
	TriggersFired   *prometheus.CounterVec
	TriggerDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		TriggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questward",
			Subsystem: "scheduler",
			Name:      "triggers_fired_total",
			Help:      "Total cron triggers fired, per job.",
		}, []string{"job"}),
		TriggerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "questward",
			Subsystem: "scheduler",
			Name:      "trigger_duration_seconds",
			Help:      "Duration of each trigger invocation, per job.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"job"}),
	}

	reg.MustRegister(
		m.TriggersFired,
		m.TriggerDuration,
	)

	return m
}
