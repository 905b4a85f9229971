// Package notify turns notify decisions into delivered messages. The
// dispatcher owns the outbound delivery channel and deduplicates one-time
// notices. Delivery failures are reported, never retried.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"questward/internal/types"
)

// disabledNoticeTTL bounds how often the same "feature disabled" explanation
// can be re-sent for one account. In-process state is enough here: a restart
// at worst repeats one explanatory notice.
const disabledNoticeTTL = 24 * time.Hour

// Dispatcher delivers notifications for task results, terminal-failure
// notices, and rule reminders. All Dispatch methods report whether a message
// was actually delivered; callers advance their counters only on true.
type Dispatcher struct {
	deliverer types.Deliverer
	reporter  types.ErrorReporter
	clock     types.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time // one-time notice dedup, keyed account/kind
}

// NewDispatcher creates a Dispatcher over the given delivery channel.
func NewDispatcher(deliverer types.Deliverer, reporter types.ErrorReporter, clock types.Clock, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Dispatcher{
		deliverer: deliverer,
		reporter:  reporter,
		clock:     clock,
		logger:    logger,
		lastSent:  make(map[string]time.Time),
	}
}

// DispatchResult delivers the user-facing outcome of one task execution.
func (d *Dispatcher) DispatchResult(ctx context.Context, result *types.TaskResult) bool {
	if result == nil || result.Message == "" {
		return false
	}
	return d.deliver(ctx, result.UserID, result.Message,
		"account_id", result.AccountID,
		"task_kind", string(result.Kind),
	)
}

// DispatchDisabled delivers the one-time explanation when a feature flag was
// switched off after an account-terminal failure. Repeat calls for the same
// (account, kind) within the dedup window are dropped.
func (d *Dispatcher) DispatchDisabled(ctx context.Context, account *types.Account, kind types.TaskKind, cause error) bool {
	key := fmt.Sprintf("%s/%s", account.ID, kind)
	now := d.clock.Now()

	d.mu.Lock()
	if sent, ok := d.lastSent[key]; ok && now.Sub(sent) < disabledNoticeTTL {
		d.mu.Unlock()
		return false
	}
	d.lastSent[key] = now
	d.mu.Unlock()

	content := fmt.Sprintf(
		"Automatic %s has been turned off for account %s because %s. Re-link the account to turn it back on.",
		taskLabel(kind), account.ExternalUID, types.TerminalReason(cause),
	)
	delivered := d.deliver(ctx, account.UserID, content,
		"account_id", account.ID,
		"task_kind", string(kind),
	)
	if !delivered {
		// Allow a retry on the next occurrence instead of waiting out
		// the dedup window.
		d.mu.Lock()
		delete(d.lastSent, key)
		d.mu.Unlock()
	}
	return delivered
}

// DispatchReminder delivers a rule reminder message to the rule's owner.
func (d *Dispatcher) DispatchReminder(ctx context.Context, rule *types.NotificationRule, message string) bool {
	return d.deliver(ctx, rule.UserID, message,
		"account_id", rule.AccountID,
		"rule_kind", string(rule.Kind),
	)
}

// deliver sends one message and settles the outcome. Failures are reported
// and logged; the caller decides whether counters advance.
func (d *Dispatcher) deliver(ctx context.Context, userID, content string, logArgs ...any) bool {
	ref, err := d.deliverer.Deliver(ctx, userID, content)
	if err != nil {
		args := append([]any{"user_id", userID, "error", err}, logArgs...)
		d.logger.WarnContext(ctx, "notification delivery failed", args...)
		if d.reporter != nil {
			d.reporter.Capture(types.NewAppError(types.ErrCodeDeliveryFailed, "notification delivery failed", err))
		}
		return false
	}
	args := append([]any{"user_id", userID, "message_ref", ref}, logArgs...)
	d.logger.InfoContext(ctx, "notification delivered", args...)
	return true
}

// taskLabel renders a task kind for user-facing text.
func taskLabel(kind types.TaskKind) string {
	switch kind {
	case types.TaskCheckIn:
		return "daily check-in"
	case types.TaskRedeemPoints:
		return "point redemption"
	case types.TaskRedeemCodes:
		return "code redemption"
	case types.TaskRuleTick:
		return "reminders"
	}
	return string(kind)
}
