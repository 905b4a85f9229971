package types

import (
	"time"
)

// RuleKind identifies one category of notification condition. The three
// families differ in how "still below threshold" is computed and in what
// resets the notify counter.
type RuleKind string

const (
	// RuleResinFull fires when the regenerating resin resource reaches the
	// configured threshold (threshold-crossing family).
	RuleResinFull RuleKind = "resin_full"

	// RuleRealmCurrencyFull fires when stored realm currency reaches the
	// configured threshold (threshold-crossing family).
	RuleRealmCurrencyFull RuleKind = "realm_currency_full"

	// RuleExpeditionDone fires when any dispatched expedition has finished
	// (binary-completion family).
	RuleExpeditionDone RuleKind = "expedition_done"

	// RuleTransformerReady fires when the parametric transformer cooldown
	// has elapsed (binary-completion family).
	RuleTransformerReady RuleKind = "transformer_ready"

	// RuleDailyTaskIncomplete fires while daily commissions remain
	// unfinished for the current day (calendar-window family).
	RuleDailyTaskIncomplete RuleKind = "daily_task_incomplete"

	// RuleWeeklyBossIncomplete fires while weekly boss discounts remain
	// unused for the current week (calendar-window family).
	RuleWeeklyBossIncomplete RuleKind = "weekly_boss_incomplete"
)

// AllRuleKinds lists every rule kind the engine evaluates.
var AllRuleKinds = []RuleKind{
	RuleResinFull,
	RuleRealmCurrencyFull,
	RuleExpeditionDone,
	RuleTransformerReady,
	RuleDailyTaskIncomplete,
	RuleWeeklyBossIncomplete,
}

// NotificationRule is one persisted row per (account, rule kind) pair. It
// carries both the user's configuration and the evaluator's throttling state.
//
// Invariant: NotifyCount never exceeds MaxNotifyCount. Once at the cap no
// further delivery occurs until the rule family's reset condition fires.
type NotificationRule struct {
	ID        string
	AccountID string
	UserID    string
	Kind      RuleKind

	Enabled bool

	// Threshold is the trigger level for threshold-crossing rules.
	// Nil for families that do not use it.
	Threshold *int

	// CheckInterval is the minimum gap between evaluations of this rule.
	CheckInterval time.Duration

	// NotifyInterval is the minimum gap between two deliveries.
	NotifyInterval time.Duration

	// MaxNotifyCount caps deliveries per armed period.
	MaxNotifyCount int

	// NotifyCount is the number of deliveries since the last reset.
	NotifyCount int

	// LastCheckAt is touched unconditionally every tick that looks at the
	// rule, so throttling windows are measured from wall-clock ticks.
	LastCheckAt time.Time

	// LastNotifyAt is the time of the last successful delivery.
	LastNotifyAt time.Time

	// EstimateAt is a forward-looking forecast of when a regenerating
	// resource will cross Threshold. While it lies in the future the rule
	// is skipped without evaluation. Zero when no estimate is held.
	EstimateAt time.Time

	// Weekdays restricts evaluation to the listed days. Empty means every day.
	Weekdays []time.Weekday

	// HoursBeforeReset restricts calendar-window rules to the final N hours
	// before the daily reset. Zero disables the filter.
	HoursBeforeReset int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeekdayMatches reports whether the rule's weekday filter admits the given
// day. An empty filter admits all days.
func (r *NotificationRule) WeekdayMatches(day time.Weekday) bool {
	if len(r.Weekdays) == 0 {
		return true
	}
	for _, d := range r.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// AtCap reports whether the rule has exhausted its delivery budget for the
// current armed period.
func (r *NotificationRule) AtCap() bool {
	return r.NotifyCount >= r.MaxNotifyCount
}

// Rule field names accepted by NotificationRuleStore.Save. Narrow-field saves
// keep concurrent writers from clobbering each other's columns.
const (
	RuleFieldNotifyCount  = "notify_count"
	RuleFieldLastCheckAt  = "last_check_at"
	RuleFieldLastNotifyAt = "last_notify_at"
	RuleFieldEstimateAt   = "estimate_at"
	RuleFieldEnabled      = "enabled"
)
