package rules

import (
	"testing"
	"time"

	"questward/internal/types"
)

func TestCalendarShouldNotify(t *testing.T) {
	fam := &CalendarFamily{}

	daily := baseRule(types.RuleDailyTaskIncomplete)
	incomplete := &types.Snapshot{CompletedCommissions: 2, TotalCommissions: 4}
	if notify, msg := fam.ShouldNotify(daily, incomplete, tickNow); !notify || msg == "" {
		t.Error("incomplete dailies must notify with a message")
	}
	complete := &types.Snapshot{CompletedCommissions: 4, TotalCommissions: 4, CommissionRewardDone: true}
	if notify, _ := fam.ShouldNotify(daily, complete, tickNow); notify {
		t.Error("completed dailies must not notify")
	}
	// All commissions done but reward unclaimed still counts as incomplete.
	unclaimed := &types.Snapshot{CompletedCommissions: 4, TotalCommissions: 4}
	if notify, _ := fam.ShouldNotify(daily, unclaimed, tickNow); !notify {
		t.Error("unclaimed commission reward must notify")
	}

	weekly := baseRule(types.RuleWeeklyBossIncomplete)
	if notify, _ := fam.ShouldNotify(weekly, &types.Snapshot{RemainingWeeklyDiscounts: 2}, tickNow); !notify {
		t.Error("unused weekly discounts must notify")
	}
	if notify, _ := fam.ShouldNotify(weekly, &types.Snapshot{RemainingWeeklyDiscounts: 0}, tickNow); notify {
		t.Error("exhausted weekly discounts must not notify")
	}
}

func TestCalendarDailyResetOnNewDay(t *testing.T) {
	fam := &CalendarFamily{}
	rule := baseRule(types.RuleDailyTaskIncomplete)
	snap := &types.Snapshot{}

	rule.LastCheckAt = time.Time{}
	if fam.ResetCondition(rule, snap, tickNow) {
		t.Error("never-checked rule must not reset")
	}

	rule.LastCheckAt = tickNow.Add(-time.Hour) // same day
	if fam.ResetCondition(rule, snap, tickNow) {
		t.Error("same-day tick must not reset")
	}

	rule.LastCheckAt = tickNow.AddDate(0, 0, -1)
	if !fam.ResetCondition(rule, snap, tickNow) {
		t.Error("tick on a new day must reset")
	}
}

func TestCalendarWeeklyResetOnNewISOWeek(t *testing.T) {
	fam := &CalendarFamily{}
	rule := baseRule(types.RuleWeeklyBossIncomplete)
	snap := &types.Snapshot{}

	// tickNow is Saturday; the previous Friday is the same ISO week.
	rule.LastCheckAt = tickNow.AddDate(0, 0, -1)
	if fam.ResetCondition(rule, snap, tickNow) {
		t.Error("same ISO week must not reset")
	}

	// The previous Sunday falls in the prior ISO week.
	rule.LastCheckAt = tickNow.AddDate(0, 0, -6)
	if !fam.ResetCondition(rule, snap, tickNow) {
		t.Error("new ISO week must reset")
	}
}

func TestCompletionFamily(t *testing.T) {
	fam := &CompletionFamily{}

	expedition := baseRule(types.RuleExpeditionDone)
	pending := &types.Snapshot{Expeditions: []types.Expedition{
		{Status: types.ExpeditionOngoing, RemainingTime: time.Hour},
		{Status: types.ExpeditionOngoing, RemainingTime: 2 * time.Hour},
	}}
	if notify, _ := fam.ShouldNotify(expedition, pending, tickNow); notify {
		t.Error("all-ongoing expeditions must not notify")
	}
	if !fam.ResetCondition(expedition, pending, tickNow) {
		t.Error("all-ongoing expeditions must re-arm")
	}

	finished := &types.Snapshot{Expeditions: []types.Expedition{
		{Status: types.ExpeditionFinished},
		{Status: types.ExpeditionOngoing, RemainingTime: time.Hour},
	}}
	if notify, msg := fam.ShouldNotify(expedition, finished, tickNow); !notify || msg == "" {
		t.Error("finished expedition must notify with a message")
	}
	if fam.ResetCondition(expedition, finished, tickNow) {
		t.Error("finished expedition must not re-arm")
	}

	transformer := baseRule(types.RuleTransformerReady)
	cooling := &types.Snapshot{TransformerObtained: true, TransformerRecovery: time.Hour}
	if notify, _ := fam.ShouldNotify(transformer, cooling, tickNow); notify {
		t.Error("cooling transformer must not notify")
	}
	ready := &types.Snapshot{TransformerObtained: true}
	if notify, _ := fam.ShouldNotify(transformer, ready, tickNow); !notify {
		t.Error("ready transformer must notify")
	}
	// Not obtained at all: never notify, always re-arm.
	if notify, _ := fam.ShouldNotify(transformer, &types.Snapshot{}, tickNow); notify {
		t.Error("unobtained transformer must not notify")
	}
	if !fam.ResetCondition(transformer, &types.Snapshot{}, tickNow) {
		t.Error("unobtained transformer must re-arm")
	}
}
