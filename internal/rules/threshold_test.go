package rules

import (
	"testing"
	"time"

	"questward/internal/types"
)

func resinSnapshot(current, max int) *types.Snapshot {
	return &types.Snapshot{
		ExternalUID:  "uid-1",
		CurrentResin: current,
		MaxResin:     max,
	}
}

func TestThresholdShouldNotify(t *testing.T) {
	fam := &ThresholdFamily{}
	threshold := 150

	rule := baseRule(types.RuleResinFull)
	rule.Threshold = &threshold

	if notify, _ := fam.ShouldNotify(rule, resinSnapshot(100, 200), tickNow); notify {
		t.Error("notified below threshold")
	}
	notify, msg := fam.ShouldNotify(rule, resinSnapshot(150, 200), tickNow)
	if !notify {
		t.Fatal("did not notify at threshold")
	}
	if msg == "" {
		t.Error("notification carries no message")
	}
	if notify, _ := fam.ShouldNotify(rule, resinSnapshot(200, 200), tickNow); !notify {
		t.Error("did not notify above threshold")
	}
}

func TestThresholdFallsBackToCap(t *testing.T) {
	fam := &ThresholdFamily{}
	rule := baseRule(types.RuleResinFull) // no threshold configured

	if notify, _ := fam.ShouldNotify(rule, resinSnapshot(199, 200), tickNow); notify {
		t.Error("notified below cap with no configured threshold")
	}
	if notify, _ := fam.ShouldNotify(rule, resinSnapshot(200, 200), tickNow); !notify {
		t.Error("did not notify at cap")
	}
}

func TestThresholdResetCondition(t *testing.T) {
	fam := &ThresholdFamily{}
	threshold := 150
	rule := baseRule(types.RuleResinFull)
	rule.Threshold = &threshold
	rule.NotifyCount = 2

	if !fam.ResetCondition(rule, resinSnapshot(100, 200), tickNow) {
		t.Error("below threshold must re-arm")
	}
	if fam.ResetCondition(rule, resinSnapshot(150, 200), tickNow) {
		t.Error("at threshold must not re-arm")
	}
}

func TestThresholdEstimate(t *testing.T) {
	fam := &ThresholdFamily{}
	threshold := 150
	rule := baseRule(types.RuleResinFull)
	rule.Threshold = &threshold

	// 50 units short at 8 minutes per unit.
	got := fam.EstimateTriggerAt(rule, resinSnapshot(100, 200), tickNow)
	want := tickNow.Add(50 * types.ResinRegenMinutes * time.Minute)
	if !got.Equal(want) {
		t.Errorf("estimate = %v, want %v", got, want)
	}

	// At or past the threshold there is nothing to forecast.
	if got := fam.EstimateTriggerAt(rule, resinSnapshot(150, 200), tickNow); !got.IsZero() {
		t.Errorf("expected zero estimate at threshold, got %v", got)
	}
}

func TestRealmCurrencyUsesOwnRate(t *testing.T) {
	fam := &ThresholdFamily{}
	threshold := 2400
	rule := baseRule(types.RuleRealmCurrencyFull)
	rule.Threshold = &threshold

	snap := &types.Snapshot{CurrentRealmCurrency: 2300, MaxRealmCurrency: 2400}
	got := fam.EstimateTriggerAt(rule, snap, tickNow)
	want := tickNow.Add(100 * types.RealmCurrencyRegenMinutes * time.Minute)
	if !got.Equal(want) {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}
