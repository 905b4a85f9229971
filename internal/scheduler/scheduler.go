// Package scheduler wires the cron triggers that drive Questward's job
// families. Each entry fires a single trigger function; overlap protection
// lives inside the coordinators and the rule engine, not here, so a slow run
// simply absorbs its own follow-up triggers as no-ops.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerFunc is one scheduled entry point. Implementations must not return
// errors to the scheduler; failures are logged and reported inside the run.
type TriggerFunc func(ctx context.Context)

// Scheduler owns the cron runner and the registered triggers.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a Scheduler running on UTC wall time.
func New(logger *slog.Logger, metrics *Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a trigger under the given cron spec. The base context is
// captured at registration and passed to every firing, so cancelling it
// stops in-flight runs as well as future ones.
func (s *Scheduler) Register(ctx context.Context, name, spec string, fn TriggerFunc) error {
	entryID, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.InfoContext(ctx, "cron trigger fired",
			slog.String("job", name),
		)
		if s.metrics != nil {
			s.metrics.TriggersFired.WithLabelValues(name).Inc()
		}
		fn(ctx)
		if s.metrics != nil {
			s.metrics.TriggerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for job %s: %w", spec, name, err)
	}
	s.logger.Info("cron trigger registered",
		slog.String("job", name),
		slog.String("spec", spec),
		slog.Int("entry_id", int(entryID)),
	)
	return nil
}

// Start begins firing registered triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("entries", len(s.cron.Entries())))
}

// Stop halts the cron runner and returns a context that is done once all
// in-flight trigger invocations have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")
	return s.cron.Stop()
}
