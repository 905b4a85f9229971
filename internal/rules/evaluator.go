// Package rules implements the per-rule notification eligibility state
// machine: a shared pre-check that throttles evaluation, and three rule
// families that decide notify / skip-and-reset / skip-and-wait against a
// freshly fetched telemetry snapshot.
package rules

import (
	"time"

	"questward/internal/types"
)

// Family is one closed rule family. Each family decides, for the kinds it
// owns, whether the condition is currently notify-worthy and whether the
// notify counter should be re-armed.
type Family interface {
	// Kinds returns the rule kinds this family evaluates.
	Kinds() []types.RuleKind

	// ShouldNotify reports whether the condition currently warrants a
	// notification, with the user-facing message to deliver.
	ShouldNotify(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) (bool, string)

	// ResetCondition reports whether the rule should re-arm: the notify
	// counter drops back to zero and no notification is sent this tick.
	ResetCondition(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) bool
}

// Forecaster is implemented by families that can predict when their condition
// will next trigger. The engine persists the estimate so ticks before that
// instant skip the rule without fetching telemetry.
type Forecaster interface {
	EstimateTriggerAt(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) time.Time
}

// SkipReason explains why the shared pre-check short-circuited a rule.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipEstimateFuture  SkipReason = "estimate_in_future"
	SkipWeekdayFilter   SkipReason = "weekday_filter"
	SkipCheckInterval   SkipReason = "check_interval"
	SkipNotifyInterval  SkipReason = "notify_interval"
	SkipHoursToReset    SkipReason = "hours_before_reset"
)

// shouldSkip is the shared pre-check evaluated before any family logic. The
// checks run in a fixed order; the first hit wins. Skipping never touches
// counters; the caller still stamps LastCheckAt unconditionally so that
// throttling windows are measured from wall-clock ticks.
func shouldSkip(rule *types.NotificationRule, now time.Time) SkipReason {
	if !rule.EstimateAt.IsZero() && rule.EstimateAt.After(now) {
		return SkipEstimateFuture
	}
	if !rule.WeekdayMatches(now.Weekday()) {
		return SkipWeekdayFilter
	}
	if !rule.LastCheckAt.IsZero() && now.Sub(rule.LastCheckAt) < rule.CheckInterval {
		return SkipCheckInterval
	}
	if !rule.LastNotifyAt.IsZero() && now.Sub(rule.LastNotifyAt) < rule.NotifyInterval {
		return SkipNotifyInterval
	}
	if rule.HoursBeforeReset > 0 {
		untilReset := types.NextDailyReset(now).Sub(now)
		if untilReset > time.Duration(rule.HoursBeforeReset)*time.Hour {
			return SkipHoursToReset
		}
	}
	return SkipNone
}

// DefaultFamilies returns the production set of rule families, one per kind
// group.
func DefaultFamilies() []Family {
	return []Family{
		&ThresholdFamily{},
		&CompletionFamily{},
		&CalendarFamily{},
	}
}
