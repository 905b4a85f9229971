package db

import (
	"context"
	"testing"
	"time"

	"questward/internal/types"
)

func TestNilIfZeroTime(t *testing.T) {
	if nilIfZeroTime(time.Time{}) != nil {
		t.Error("zero time must map to nil")
	}
	now := time.Now()
	if got := nilIfZeroTime(now); got == nil || !got.Equal(now) {
		t.Error("non-zero time must round-trip")
	}
}

func TestTimeOrZero(t *testing.T) {
	if !timeOrZero(nil).IsZero() {
		t.Error("nil must map to the zero time")
	}
	now := time.Now()
	if !timeOrZero(&now).Equal(now) {
		t.Error("non-nil time must round-trip")
	}
}

func TestFeatureColumnsCoverAllTaskKinds(t *testing.T) {
	for _, kind := range types.AllTaskKinds {
		cols, ok := featureColumns[kind]
		if !ok {
			t.Errorf("task kind %s has no column mapping", kind)
			continue
		}
		if cols.flag == "" || cols.lastRun == "" {
			t.Errorf("task kind %s has incomplete mapping: %+v", kind, cols)
		}
	}
}

func TestWeekdaysToInts(t *testing.T) {
	if weekdaysToInts(nil) != nil {
		t.Error("empty filter must store NULL")
	}
	got := weekdaysToInts([]time.Weekday{time.Sunday, time.Saturday})
	if len(got) != 2 || got[0] != 0 || got[1] != 6 {
		t.Errorf("weekdaysToInts = %v", got)
	}
}

func TestRuleSaveRejectsUnknownField(t *testing.T) {
	repo := NewNotificationRuleRepository(nil)
	rule := &types.NotificationRule{ID: "rule-1"}

	// The whitelist check runs before any database access.
	err := repo.Save(context.Background(), rule, "user_id")
	if err == nil {
		t.Fatal("unknown field accepted")
	}

	// Saving nothing is a no-op, not an error.
	if err := repo.Save(context.Background(), rule); err != nil {
		t.Errorf("empty field list returned error: %v", err)
	}
}

func TestListEligibleRejectsUnknownKind(t *testing.T) {
	repo := NewAccountRepository(nil)
	if _, err := repo.ListEligible(context.Background(), types.TaskKind("bogus")); err == nil {
		t.Fatal("unknown task kind accepted")
	}
}
