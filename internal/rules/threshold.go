package rules

import (
	"fmt"
	"time"

	"questward/internal/types"
)

// ThresholdFamily evaluates monotonically-regenerating resources against a
// configured cap (resin, realm currency). While the resource sits below the
// threshold the family re-arms the counter and forecasts the crossing instant
// from the fixed per-resource regeneration rate, so intermediate ticks skip
// the rule entirely.
type ThresholdFamily struct{}

var _ Family = (*ThresholdFamily)(nil)
var _ Forecaster = (*ThresholdFamily)(nil)

// Kinds returns the threshold-crossing rule kinds.
func (f *ThresholdFamily) Kinds() []types.RuleKind {
	return []types.RuleKind{types.RuleResinFull, types.RuleRealmCurrencyFull}
}

// ShouldNotify reports true once the resource has reached the threshold.
func (f *ThresholdFamily) ShouldNotify(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) (bool, string) {
	current, max := f.current(rule.Kind, snap)
	threshold := f.threshold(rule, snap)
	if current < threshold {
		return false, ""
	}
	switch rule.Kind {
	case types.RuleRealmCurrencyFull:
		return true, fmt.Sprintf("Realm currency has reached %d/%d.", current, max)
	default:
		return true, fmt.Sprintf("Resin has reached %d/%d.", current, max)
	}
}

// ResetCondition re-arms the rule while the resource is still below the
// threshold.
func (f *ThresholdFamily) ResetCondition(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) bool {
	current, _ := f.current(rule.Kind, snap)
	return current < f.threshold(rule, snap)
}

// EstimateTriggerAt forecasts when the resource will cross the threshold at
// the fixed regeneration rate: now + (threshold - current) * rate.
func (f *ThresholdFamily) EstimateTriggerAt(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) time.Time {
	current, _ := f.current(rule.Kind, snap)
	threshold := f.threshold(rule, snap)
	if current >= threshold {
		return time.Time{}
	}
	minutesPerUnit := types.ResinRegenMinutes
	if rule.Kind == types.RuleRealmCurrencyFull {
		minutesPerUnit = types.RealmCurrencyRegenMinutes
	}
	return now.Add(time.Duration(threshold-current) * time.Duration(minutesPerUnit) * time.Minute)
}

// current extracts the resource value and cap for the rule kind.
func (f *ThresholdFamily) current(kind types.RuleKind, snap *types.Snapshot) (current, max int) {
	if kind == types.RuleRealmCurrencyFull {
		return snap.CurrentRealmCurrency, snap.MaxRealmCurrency
	}
	return snap.CurrentResin, snap.MaxResin
}

// threshold resolves the configured threshold, falling back to the resource
// cap when the user has not set one.
func (f *ThresholdFamily) threshold(rule *types.NotificationRule, snap *types.Snapshot) int {
	if rule.Threshold != nil && *rule.Threshold > 0 {
		return *rule.Threshold
	}
	_, max := f.current(rule.Kind, snap)
	return max
}
