package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"questward/internal/types"
)

// ReminderDispatcher is the slice of the notification dispatcher the engine
// needs: turning a notify decision into a delivered message. It reports
// whether delivery actually happened, because counters only advance on
// successful delivery.
type ReminderDispatcher interface {
	DispatchReminder(ctx context.Context, rule *types.NotificationRule, message string) bool
}

// Engine drives one reminder tick: it loads every enabled rule, fetches
// telemetry once per upstream identity through the tick-scoped cache, runs
// the shared pre-check and the owning family, and persists the narrow set of
// fields each decision touched.
type Engine struct {
	accounts   types.AccountRepository
	rules      types.NotificationRuleStore
	telemetry  TelemetryFetcher
	dispatcher ReminderDispatcher
	reporter   types.ErrorReporter

	families map[types.RuleKind]Family

	clock  types.Clock
	logger *slog.Logger

	// running guards against overlapping ticks, mirroring the runner's
	// per-task-kind re-entrancy rule.
	running atomic.Bool
}

// EngineConfig holds the configuration for creating an Engine.
type EngineConfig struct {
	Accounts   types.AccountRepository
	Rules      types.NotificationRuleStore
	Telemetry  TelemetryFetcher
	Dispatcher ReminderDispatcher
	Reporter   types.ErrorReporter
	Families   []Family

	Clock  types.Clock
	Logger *slog.Logger
}

// NewEngine creates an Engine. When no families are given the production set
// is used.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	families := cfg.Families
	if len(families) == 0 {
		families = DefaultFamilies()
	}
	byKind := make(map[types.RuleKind]Family)
	for _, fam := range families {
		for _, kind := range fam.Kinds() {
			byKind[kind] = fam
		}
	}
	return &Engine{
		accounts:   cfg.Accounts,
		rules:      cfg.Rules,
		telemetry:  cfg.Telemetry,
		dispatcher: cfg.Dispatcher,
		reporter:   cfg.Reporter,
		families:   byKind,
		clock:      clock,
		logger:     logger.With("task_kind", string(types.TaskRuleTick)),
	}
}

// Tick evaluates every enabled rule once. Overlapping ticks are skipped, and
// no error ever escapes to the scheduler trigger.
func (e *Engine) Tick(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.InfoContext(ctx, "rule tick already in progress, skipping trigger")
		return
	}
	defer e.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("rule tick panic: %v", r)
			e.logger.ErrorContext(ctx, "rule tick panicked", "error", err)
			e.capture(err)
		}
	}()

	enabled, err := e.rules.ListEnabled(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to list enabled rules", "error", err)
		e.capture(err)
		return
	}
	if len(enabled) == 0 {
		return
	}

	eligible, err := e.accounts.ListEligible(ctx, types.TaskRuleTick)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to list reminder accounts", "error", err)
		e.capture(err)
		return
	}
	byID := make(map[string]*types.Account, len(eligible))
	for _, account := range eligible {
		byID[account.ID] = account
	}

	cache := NewSnapshotCache(e.telemetry, types.TelemetryDailyNotes)

	evaluated, notified := 0, 0
	for _, rule := range enabled {
		account, ok := byID[rule.AccountID]
		if !ok {
			// Reminders disabled on the account since the rule was
			// configured; leave the rule untouched.
			continue
		}
		evaluated++
		if e.evaluateRule(ctx, cache, account, rule) {
			notified++
		}
	}

	e.logger.InfoContext(ctx, "rule tick complete",
		"rules_enabled", len(enabled),
		"rules_evaluated", evaluated,
		"notifications_sent", notified,
	)
}

// evaluateRule runs one rule through the pre-check and its family, dispatches
// when due, and persists exactly the fields this tick changed. LastCheckAt is
// stamped unconditionally, on every path including skips, so the throttling
// windows count wall-clock ticks rather than successful evaluations. It
// returns true when a notification was delivered.
func (e *Engine) evaluateRule(ctx context.Context, cache *SnapshotCache, account *types.Account, rule *types.NotificationRule) bool {
	now := e.clock.Now()
	fields := []string{types.RuleFieldLastCheckAt}
	delivered := false

	if reason := shouldSkip(rule, now); reason != SkipNone {
		e.logger.DebugContext(ctx, "rule skipped",
			"rule_id", rule.ID,
			"rule_kind", string(rule.Kind),
			"reason", string(reason),
		)
		e.persist(ctx, rule, now, fields)
		return false
	}

	family, ok := e.families[rule.Kind]
	if !ok {
		e.logger.WarnContext(ctx, "no family registered for rule kind", "rule_kind", string(rule.Kind))
		e.persist(ctx, rule, now, fields)
		return false
	}

	snap, err := cache.Get(ctx, account)
	if err != nil {
		e.logger.WarnContext(ctx, "telemetry fetch failed",
			"account_id", account.ID,
			"rule_kind", string(rule.Kind),
			"error", err,
		)
		if types.IsAccountTerminal(err) {
			e.capture(err)
		}
		e.persist(ctx, rule, now, fields)
		return false
	}

	switch {
	case family.ResetCondition(rule, snap, now):
		if rule.NotifyCount != 0 {
			rule.NotifyCount = 0
			fields = append(fields, types.RuleFieldNotifyCount)
		}
		if forecaster, ok := family.(Forecaster); ok {
			if estimate := forecaster.EstimateTriggerAt(rule, snap, now); !estimate.IsZero() {
				rule.EstimateAt = estimate
				fields = append(fields, types.RuleFieldEstimateAt)
			}
		}
	default:
		notify, message := family.ShouldNotify(rule, snap, now)
		if notify && !rule.AtCap() {
			if e.dispatcher.DispatchReminder(ctx, rule, message) {
				rule.NotifyCount++
				rule.LastNotifyAt = now
				fields = append(fields, types.RuleFieldNotifyCount, types.RuleFieldLastNotifyAt)
				delivered = true
			}
			// Delivery failure leaves counters untouched so the same
			// notification is retried on the next eligible tick.
		}
	}

	e.persist(ctx, rule, now, fields)
	return delivered
}

// persist stamps LastCheckAt and saves the accumulated narrow field set.
func (e *Engine) persist(ctx context.Context, rule *types.NotificationRule, now time.Time, fields []string) {
	rule.LastCheckAt = now
	if err := e.rules.Save(ctx, rule, fields...); err != nil {
		e.logger.ErrorContext(ctx, "failed to save rule state",
			"rule_id", rule.ID,
			"error", err,
		)
		e.capture(err)
	}
}

// capture reports an error to the error reporter when one is configured.
func (e *Engine) capture(err error) {
	if e.reporter != nil {
		e.reporter.Capture(err)
	}
}
