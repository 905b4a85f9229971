package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"questward/internal/types"
)

// mockDeliverer scripts delivery outcomes.
type mockDeliverer struct {
	err   error
	calls []string // delivered content
}

func (m *mockDeliverer) Deliver(_ context.Context, _ string, content string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.calls = append(m.calls, content)
	return "msg-1", nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testAccount() *types.Account {
	return &types.Account{ID: "acct-1", UserID: "user-1", ExternalUID: "800000001"}
}

func terminalCause() error {
	return types.NewAppError(types.ErrCodeAccountBanned, "banned", nil)
}

func TestDispatchResult(t *testing.T) {
	deliverer := &mockDeliverer{}
	d := NewDispatcher(deliverer, nil, nil, quietLogger())

	ok := d.DispatchResult(context.Background(), &types.TaskResult{
		AccountID: "acct-1",
		UserID:    "user-1",
		Kind:      types.TaskCheckIn,
		Message:   "Checked in.",
	})
	if !ok {
		t.Fatal("delivery reported failed")
	}
	if len(deliverer.calls) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliverer.calls))
	}

	// Empty messages are dropped without touching the channel.
	if d.DispatchResult(context.Background(), &types.TaskResult{UserID: "user-1"}) {
		t.Error("empty message reported delivered")
	}
	if len(deliverer.calls) != 1 {
		t.Error("empty message reached the deliverer")
	}
}

func TestDispatchDisabledDedupWindow(t *testing.T) {
	deliverer := &mockDeliverer{}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	d := NewDispatcher(deliverer, nil, clock, quietLogger())
	account := testAccount()

	if !d.DispatchDisabled(context.Background(), account, types.TaskCheckIn, terminalCause()) {
		t.Fatal("first notice not delivered")
	}
	// Repeat within the window is dropped.
	clock.now = clock.now.Add(time.Hour)
	if d.DispatchDisabled(context.Background(), account, types.TaskCheckIn, terminalCause()) {
		t.Error("duplicate notice delivered inside dedup window")
	}
	// A different task kind is a different notice.
	if !d.DispatchDisabled(context.Background(), account, types.TaskRedeemCodes, terminalCause()) {
		t.Error("notice for a different kind was deduplicated")
	}
	// Past the window the notice goes out again.
	clock.now = clock.now.Add(disabledNoticeTTL)
	if !d.DispatchDisabled(context.Background(), account, types.TaskCheckIn, terminalCause()) {
		t.Error("notice not re-delivered after dedup window")
	}
	if len(deliverer.calls) != 3 {
		t.Errorf("expected 3 deliveries, got %d", len(deliverer.calls))
	}
}

func TestDispatchDisabledFailureAllowsRetry(t *testing.T) {
	deliverer := &mockDeliverer{err: errors.New("bot api down")}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	d := NewDispatcher(deliverer, nil, clock, quietLogger())
	account := testAccount()

	if d.DispatchDisabled(context.Background(), account, types.TaskCheckIn, terminalCause()) {
		t.Fatal("failed delivery reported as delivered")
	}

	// The failed attempt must not consume the dedup slot.
	deliverer.err = nil
	if !d.DispatchDisabled(context.Background(), account, types.TaskCheckIn, terminalCause()) {
		t.Error("retry after failed delivery was deduplicated")
	}
}

func TestDispatchReminderReportsDeliveryFailure(t *testing.T) {
	deliverer := &mockDeliverer{err: errors.New("bot api down")}
	d := NewDispatcher(deliverer, nil, nil, quietLogger())
	rule := &types.NotificationRule{ID: "rule-1", AccountID: "acct-1", UserID: "user-1", Kind: types.RuleResinFull}

	if d.DispatchReminder(context.Background(), rule, "Resin is full.") {
		t.Error("failed reminder reported delivered")
	}

	deliverer.err = nil
	if !d.DispatchReminder(context.Background(), rule, "Resin is full.") {
		t.Error("reminder delivery failed unexpectedly")
	}
}
