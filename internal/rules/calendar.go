package rules

import (
	"fmt"
	"time"

	"questward/internal/types"
)

// CalendarFamily evaluates daily and weekly obligations that re-arm at the
// calendar boundary: unfinished daily commissions and unused weekly boss
// discounts. A fulfilled obligation skips without resetting mid-window; the
// counter only drops back to zero once the tick lands in a new window,
// detected by comparing LastCheckAt's window with now's.
type CalendarFamily struct{}

var _ Family = (*CalendarFamily)(nil)

// Kinds returns the calendar-window rule kinds.
func (f *CalendarFamily) Kinds() []types.RuleKind {
	return []types.RuleKind{types.RuleDailyTaskIncomplete, types.RuleWeeklyBossIncomplete}
}

// ShouldNotify reports true while the obligation is unfulfilled for the
// current window.
func (f *CalendarFamily) ShouldNotify(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) (bool, string) {
	switch rule.Kind {
	case types.RuleWeeklyBossIncomplete:
		if snap.RemainingWeeklyDiscounts > 0 {
			return true, fmt.Sprintf("%d weekly boss discounts are still unused.", snap.RemainingWeeklyDiscounts)
		}
	default:
		if !snap.DailiesDone() {
			return true, fmt.Sprintf("Daily commissions incomplete: %d/%d done.",
				snap.CompletedCommissions, snap.TotalCommissions)
		}
	}
	return false, ""
}

// ResetCondition re-arms the rule when the tick has crossed into a new
// calendar window since the last check. Fulfillment alone never resets the
// counter mid-window.
func (f *CalendarFamily) ResetCondition(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) bool {
	if rule.LastCheckAt.IsZero() {
		return false
	}
	if rule.Kind == types.RuleWeeklyBossIncomplete {
		lastYear, lastWeek := rule.LastCheckAt.ISOWeek()
		nowYear, nowWeek := now.ISOWeek()
		return lastYear != nowYear || lastWeek != nowWeek
	}
	ly, lm, ld := rule.LastCheckAt.Date()
	ny, nm, nd := now.Date()
	return ly != ny || lm != nm || ld != nd
}
