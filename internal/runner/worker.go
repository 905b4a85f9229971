package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"questward/internal/types"
)

// Dispatcher is the slice of the notification dispatcher the worker pool
// needs: handing off task results and routing the one-time notice when a
// feature is disabled. Both report whether a message was actually delivered.
type Dispatcher interface {
	DispatchResult(ctx context.Context, result *types.TaskResult) bool
	DispatchDisabled(ctx context.Context, account *types.Account, kind types.TaskKind, cause error) bool
}

// DefaultFailureCeiling is the per-worker consecutive-failure ceiling used
// when a task kind does not configure its own.
const DefaultFailureCeiling = 10

// DefaultItemDelay is the fixed backpressure sleep after each processed
// account.
const DefaultItemDelay = 3 * time.Second

// Worker drains accounts from its queues and executes the run's task through
// one transport. A worker bound to a gateway probes it once on start and
// aborts alone on a failed probe; sibling workers keep the run alive.
type Worker struct {
	kind      types.TaskKind
	transport types.Transport

	// endpoint is the gateway base URL, empty for the direct worker.
	endpoint string
	probe    types.GatewayProbe

	// private is drained before shared and is only set on the direct
	// worker; it holds gateway-ineligible accounts.
	private *TaskQueue
	shared  *TaskQueue

	accounts   types.AccountRepository
	dispatcher Dispatcher
	run        *RunContext

	failureCeiling int
	itemDelay      time.Duration
	sleepFn        func(time.Duration) // for testability; defaults to time.Sleep

	clock  types.Clock
	logger *slog.Logger
}

// WorkerConfig holds the configuration for creating a Worker.
type WorkerConfig struct {
	Kind      types.TaskKind
	Transport types.Transport
	Endpoint  string
	Probe     types.GatewayProbe
	Private   *TaskQueue
	Shared    *TaskQueue

	Accounts   types.AccountRepository
	Dispatcher Dispatcher
	Run        *RunContext

	FailureCeiling int
	ItemDelay      time.Duration
	SleepFn        func(time.Duration)

	Clock  types.Clock
	Logger *slog.Logger
}

// NewWorker creates a Worker with the given configuration.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	ceiling := cfg.FailureCeiling
	if ceiling <= 0 {
		ceiling = DefaultFailureCeiling
	}
	delay := cfg.ItemDelay
	if delay <= 0 {
		delay = DefaultItemDelay
	}
	sleepFn := cfg.SleepFn
	if sleepFn == nil {
		sleepFn = time.Sleep
	}
	return &Worker{
		kind:           cfg.Kind,
		transport:      cfg.Transport,
		endpoint:       cfg.Endpoint,
		probe:          cfg.Probe,
		private:        cfg.Private,
		shared:         cfg.Shared,
		accounts:       cfg.Accounts,
		dispatcher:     cfg.Dispatcher,
		run:            cfg.Run,
		failureCeiling: ceiling,
		itemDelay:      delay,
		sleepFn:        sleepFn,
		clock:          clock,
		logger:         logger.With("worker", cfg.Transport.Name(), "task_kind", string(cfg.Kind)),
	}
}

// Name returns the worker's transport name for stats and logs.
func (w *Worker) Name() string { return w.transport.Name() }

// Run probes the gateway (if any) and then drains the private queue followed
// by the shared queue. It returns nil on a clean drain, or an error when the
// probe fails or the consecutive-failure ceiling is reached. Either way only
// this worker stops; the coordinator keeps the run going.
func (w *Worker) Run(ctx context.Context) error {
	if w.endpoint != "" {
		if !w.probe.IsHealthy(ctx, w.endpoint) {
			return types.NewAppError(
				types.ErrCodeGatewayUnhealthy,
				fmt.Sprintf("gateway %s failed liveness probe", w.transport.Name()),
				nil,
			)
		}
		w.logger.InfoContext(ctx, "gateway probe passed", "endpoint", w.endpoint)
	}

	consecutive := 0

	if w.private != nil {
		if err := w.drain(ctx, w.private, &consecutive); err != nil {
			return err
		}
	}
	return w.drain(ctx, w.shared, &consecutive)
}

// drain processes accounts from one queue until it is closed or the context
// is cancelled. The consecutive-failure counter is shared across queues.
func (w *Worker) drain(ctx context.Context, queue *TaskQueue, consecutive *int) error {
	for {
		account, ok := queue.Pop(ctx)
		if !ok {
			return nil
		}

		transient := w.processOne(ctx, queue, account)
		if transient {
			*consecutive++
			if *consecutive >= w.failureCeiling {
				return types.NewAppError(
					types.ErrCodeUpstreamUnavailable,
					fmt.Sprintf("worker %s reached failure ceiling (%d)", w.transport.Name(), w.failureCeiling),
					nil,
				)
			}
			continue
		}
		*consecutive = 0
	}
}

// processOne executes the task for one account and settles the queue item.
// It returns true when the failure was transient and the account was
// re-enqueued. The backpressure sleep runs on every path, including when the
// context has already been cancelled; cancellation is cooperative, not a
// preemptive cut of in-flight side effects.
func (w *Worker) processOne(ctx context.Context, queue *TaskQueue, account *types.Account) (transient bool) {
	defer w.sleepFn(w.itemDelay)

	result, err := w.transport.PerformTask(ctx, account, w.kind)
	if err == nil {
		w.run.Stats.RecordSuccess()
		if result != nil && result.Message != "" {
			if w.dispatcher.DispatchResult(ctx, result) {
				w.run.Stats.RecordNotification()
			}
		}
		if updateErr := w.accounts.UpdateLastRunTime(ctx, account.ID, w.kind, w.clock.Now()); updateErr != nil {
			w.logger.ErrorContext(ctx, "failed to record last run time",
				"account_id", account.ID,
				"error", updateErr,
			)
		}
		queue.Done()
		return false
	}

	if types.IsAccountTerminal(err) {
		w.logger.WarnContext(ctx, "account-terminal failure, disabling feature",
			"account_id", account.ID,
			"error", err,
		)
		if disableErr := w.accounts.DisableFeature(ctx, account.ID, w.kind); disableErr != nil {
			w.logger.ErrorContext(ctx, "failed to disable feature flag",
				"account_id", account.ID,
				"error", disableErr,
			)
		}
		if w.dispatcher.DispatchDisabled(ctx, account, w.kind, err) {
			w.run.Stats.RecordNotification()
		}
		w.run.Stats.RecordTerminalFailure(w.transport.Name())
		queue.Done()
		return false
	}

	// Transient failure: another worker, possibly on a different gateway,
	// may succeed where this one failed. The retry is pushed before the
	// original is marked done so the queue is never observed drained
	// mid-retry.
	w.logger.WarnContext(ctx, "transient failure, re-enqueueing account",
		"account_id", account.ID,
		"error", err,
	)
	queue.Push(account)
	queue.Done()
	w.run.Stats.RecordTransientFailure(w.transport.Name())
	return true
}
