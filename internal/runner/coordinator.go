package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"questward/internal/types"
)

// GatewayBinding pairs a named gateway transport with the endpoint its probe
// should check.
type GatewayBinding struct {
	Transport types.Transport
	Endpoint  string
}

// TaskPolicy holds the per-task-kind tunables.
type TaskPolicy struct {
	// FailureCeiling is the consecutive transient failures after which a
	// worker stops retrying a systematically broken transport.
	FailureCeiling int

	// ItemDelay is the fixed backpressure sleep after each account.
	ItemDelay time.Duration
}

// Coordinator owns one task kind end to end: the non-blocking re-entrancy
// guard, the run's working set, the worker pool, and the run summary.
type Coordinator struct {
	kind     types.TaskKind
	accounts types.AccountRepository
	gateways []GatewayBinding
	direct   types.Transport
	probe    types.GatewayProbe

	dispatcher Dispatcher
	reporter   types.ErrorReporter
	policy     TaskPolicy
	metrics    *Metrics

	clock   types.Clock
	logger  *slog.Logger
	sleepFn func(time.Duration)

	// running is the per-task-kind re-entrancy guard. A second Execute
	// while one is in flight returns immediately without effect.
	running atomic.Bool
}

// CoordinatorConfig holds the configuration for creating a Coordinator.
type CoordinatorConfig struct {
	Kind     types.TaskKind
	Accounts types.AccountRepository
	Gateways []GatewayBinding
	Direct   types.Transport
	Probe    types.GatewayProbe

	Dispatcher Dispatcher
	Reporter   types.ErrorReporter
	Policy     TaskPolicy
	Metrics    *Metrics

	Clock   types.Clock
	Logger  *slog.Logger
	SleepFn func(time.Duration)
}

// NewCoordinator creates a Coordinator for one task kind.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	policy := cfg.Policy
	if policy.FailureCeiling <= 0 {
		policy.FailureCeiling = DefaultFailureCeiling
	}
	if policy.ItemDelay <= 0 {
		policy.ItemDelay = DefaultItemDelay
	}
	return &Coordinator{
		kind:       cfg.Kind,
		accounts:   cfg.Accounts,
		gateways:   cfg.Gateways,
		direct:     cfg.Direct,
		probe:      cfg.Probe,
		dispatcher: cfg.Dispatcher,
		reporter:   cfg.Reporter,
		policy:     policy,
		metrics:    cfg.Metrics,
		clock:      clock,
		logger:     logger.With("task_kind", string(cfg.Kind)),
		sleepFn:    cfg.SleepFn,
	}
}

// Kind returns the task kind this coordinator drives.
func (c *Coordinator) Kind() types.TaskKind { return c.kind }

// Execute runs one full pass over the eligible accounts. If a run of this
// task kind is already in progress the call is a no-op. Errors never escape
// to the scheduler trigger; everything unexpected is captured and reported.
func (c *Coordinator) Execute(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.InfoContext(ctx, "run already in progress, skipping trigger")
		if c.metrics != nil {
			c.metrics.RunsSkipped.WithLabelValues(string(c.kind)).Inc()
		}
		return
	}
	defer c.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("run panic for task %s: %v", c.kind, r)
			c.logger.ErrorContext(ctx, "run panicked", "error", err)
			c.capture(err)
		}
	}()

	run := &RunContext{
		RunID:     uuid.New().String(),
		StartedAt: c.clock.Now(),
		Stats:     NewRunStats(),
	}
	ctx = types.WithRunID(ctx, run.RunID)

	if err := c.execute(ctx, run); err != nil {
		c.logger.ErrorContext(ctx, "run failed", "run_id", run.RunID, "error", err)
		c.capture(err)
	}

	summary := run.Stats.Summary()
	duration := c.clock.Now().Sub(run.StartedAt)
	c.logger.InfoContext(ctx, "run complete",
		"run_id", run.RunID,
		"duration", duration.String(),
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"transient_failures", summary.TransientFailures,
		"terminal_failures", summary.TerminalFailures,
		"notifications_sent", summary.NotificationsSent,
		"worker_errors", summary.WorkerErrors,
	)
	if c.metrics != nil {
		c.metrics.ObserveRun(c.kind, summary, duration)
	}
}

// execute builds the working set, seeds the queues, and drives the worker
// pool to completion with join-then-cancel shutdown.
func (c *Coordinator) execute(ctx context.Context, run *RunContext) error {
	eligible, err := c.accounts.ListEligible(ctx, c.kind)
	if err != nil {
		return fmt.Errorf("listing eligible accounts: %w", err)
	}
	if len(eligible) == 0 {
		c.logger.InfoContext(ctx, "no eligible accounts", "run_id", run.RunID)
		return nil
	}

	// Partition: gateway-ineligible accounts go straight to the direct
	// worker's private share, everything else to the shared queue drained
	// by all workers including the direct one.
	var privateSet, sharedSet []*types.Account
	for _, account := range eligible {
		if account.Region.GatewayEligible() {
			sharedSet = append(sharedSet, account)
		} else {
			privateSet = append(privateSet, account)
		}
	}

	shared := NewTaskQueue(len(sharedSet))
	for _, account := range sharedSet {
		shared.Push(account)
	}

	var private *TaskQueue
	if len(privateSet) > 0 {
		private = NewTaskQueue(len(privateSet))
		for _, account := range privateSet {
			private.Push(account)
		}
	}

	c.logger.InfoContext(ctx, "run starting",
		"run_id", run.RunID,
		"eligible", len(eligible),
		"shared", len(sharedSet),
		"direct_only", len(privateSet),
		"gateways", len(c.gateways),
	)

	workers := c.buildWorkers(run, shared, private)

	// Close the private queue the moment its share is settled so the direct
	// worker falls through to the shared queue instead of parking on an
	// empty channel. Re-enqueues push before marking the original done, so
	// a drained private queue can never see another push.
	if private != nil {
		go func() {
			<-private.Drained()
			private.Close()
		}()
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	workersDone := make(chan struct{})
	for _, worker := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("worker %s panic: %v", w.Name(), r)
					c.logger.ErrorContext(ctx, "worker panicked", "worker", w.Name(), "error", err)
					c.capture(err)
				}
			}()
			// The direct worker is the private queue's only consumer;
			// once it stops, for any reason, that queue can never be
			// worked again.
			if w.private != nil {
				defer w.private.Close()
			}
			if err := w.Run(workerCtx); err != nil {
				c.logger.WarnContext(ctx, "worker aborted",
					"run_id", run.RunID,
					"worker", w.Name(),
					"error", err,
				)
				c.capture(err)
				if c.metrics != nil {
					c.metrics.WorkerAborts.WithLabelValues(string(c.kind), w.Name()).Inc()
				}
			}
		}(worker)
	}
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	// Block until every enqueued item has been settled, then cancel the
	// still-running workers and await their cooperative unwind. If every
	// worker dies before the drain completes (all gateways down and the
	// direct transport broken), give up rather than wait forever.
	drained := allDrained(shared, private)
	var drainErr error
	select {
	case <-drained:
	case <-workersDone:
		select {
		case <-drained:
		default:
			drainErr = fmt.Errorf("all workers stopped before queue drained for task %s", c.kind)
		}
	case <-ctx.Done():
		drainErr = fmt.Errorf("run cancelled before queue drained: %w", ctx.Err())
	}

	shared.Close()
	if private != nil {
		private.Close()
	}
	cancel()
	<-workersDone

	return drainErr
}

// buildWorkers creates one worker per configured gateway plus the direct
// worker, which additionally owns the private queue.
func (c *Coordinator) buildWorkers(run *RunContext, shared, private *TaskQueue) []*Worker {
	workers := make([]*Worker, 0, len(c.gateways)+1)
	for _, gw := range c.gateways {
		workers = append(workers, NewWorker(WorkerConfig{
			Kind:           c.kind,
			Transport:      gw.Transport,
			Endpoint:       gw.Endpoint,
			Probe:          c.probe,
			Shared:         shared,
			Accounts:       c.accounts,
			Dispatcher:     c.dispatcher,
			Run:            run,
			FailureCeiling: c.policy.FailureCeiling,
			ItemDelay:      c.policy.ItemDelay,
			SleepFn:        c.sleepFn,
			Clock:          c.clock,
			Logger:         c.logger,
		}))
	}
	workers = append(workers, NewWorker(WorkerConfig{
		Kind:           c.kind,
		Transport:      c.direct,
		Private:        private,
		Shared:         shared,
		Accounts:       c.accounts,
		Dispatcher:     c.dispatcher,
		Run:            run,
		FailureCeiling: c.policy.FailureCeiling,
		ItemDelay:      c.policy.ItemDelay,
		SleepFn:        c.sleepFn,
		Clock:          c.clock,
		Logger:         c.logger,
	}))
	return workers
}

// capture reports an error to the error reporter when one is configured.
func (c *Coordinator) capture(err error) {
	if c.reporter != nil {
		c.reporter.Capture(err)
	}
}

// allDrained returns a channel closed once every given queue has drained.
// Nil queues are ignored.
func allDrained(queues ...*TaskQueue) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for _, q := range queues {
			if q != nil {
				<-q.Drained()
			}
		}
		close(ch)
	}()
	return ch
}
