package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"questward/internal/types"
)

// NotificationRuleRepository provides data access for the notification_rules
// table. It implements types.NotificationRuleStore.
type NotificationRuleRepository struct {
	db DBTX
}

var _ types.NotificationRuleStore = (*NotificationRuleRepository)(nil)

// NewNotificationRuleRepository creates a repository backed by the given
// database connection (pool or transaction).
func NewNotificationRuleRepository(db DBTX) *NotificationRuleRepository {
	return &NotificationRuleRepository{db: db}
}

const ruleColumns = `
	id, account_id, user_id, kind, enabled, threshold,
	check_interval_minutes, notify_interval_minutes,
	max_notify_count, notify_count,
	last_check_at, last_notify_at, estimate_at,
	weekdays, hours_before_reset, created_at, updated_at`

// GetOrNone returns the rule for (accountID, kind), or nil when no rule has
// been configured. Rules are created and edited through the out-of-band
// management tooling, not by the tick loop, which only reads and stamps them.
func (r *NotificationRuleRepository) GetOrNone(ctx context.Context, accountID string, kind types.RuleKind) (*types.NotificationRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+`
		 FROM notification_rules
		 WHERE account_id = $1 AND kind = $2`,
		accountID, string(kind),
	)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification rule", err)
	}
	return rule, nil
}

// Create inserts a newly configured rule on behalf of the management tooling.
// If the ID is empty the database generates it via the DEFAULT expression.
func (r *NotificationRuleRepository) Create(ctx context.Context, rule *types.NotificationRule) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_rules
		 (account_id, user_id, kind, enabled, threshold,
		  check_interval_minutes, notify_interval_minutes,
		  max_notify_count, notify_count,
		  last_check_at, last_notify_at, estimate_at,
		  weekdays, hours_before_reset)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, created_at, updated_at`,
		rule.AccountID,
		rule.UserID,
		string(rule.Kind),
		rule.Enabled,
		rule.Threshold,
		int(rule.CheckInterval.Minutes()),
		int(rule.NotifyInterval.Minutes()),
		rule.MaxNotifyCount,
		rule.NotifyCount,
		nilIfZeroTime(rule.LastCheckAt),
		nilIfZeroTime(rule.LastNotifyAt),
		nilIfZeroTime(rule.EstimateAt),
		weekdaysToInts(rule.Weekdays),
		rule.HoursBeforeReset,
	)
	if err := row.Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification rule", err)
	}
	return nil
}

// Save persists only the named fields of the rule. Unknown field names are
// rejected rather than silently dropped; the column list is built from a
// closed map, never from caller input.
func (r *NotificationRuleRepository) Save(ctx context.Context, rule *types.NotificationRule, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for _, field := range fields {
		var value any
		switch field {
		case types.RuleFieldNotifyCount:
			value = rule.NotifyCount
		case types.RuleFieldLastCheckAt:
			value = nilIfZeroTime(rule.LastCheckAt)
		case types.RuleFieldLastNotifyAt:
			value = nilIfZeroTime(rule.LastNotifyAt)
		case types.RuleFieldEstimateAt:
			value = nilIfZeroTime(rule.EstimateAt)
		case types.RuleFieldEnabled:
			value = rule.Enabled
		default:
			return types.NewAppError(
				types.ErrCodeInternalUnexpected,
				fmt.Sprintf("unknown rule field %q", field),
				nil,
			)
		}
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, rule.ID)

	tag, err := r.db.Exec(ctx,
		fmt.Sprintf(`UPDATE notification_rules SET %s WHERE id = $%d`,
			strings.Join(setClauses, ", "), len(args)),
		args...,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save notification rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeInternalDB,
			fmt.Sprintf("notification rule %s not found", rule.ID),
			nil,
		)
	}
	return nil
}

// ListEnabled returns all enabled rules, grouped by account so one tick can
// reuse telemetry snapshots across an account's rules.
func (r *NotificationRuleRepository) ListEnabled(ctx context.Context) ([]*types.NotificationRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+`
		 FROM notification_rules
		 WHERE enabled = TRUE
		 ORDER BY account_id, kind`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list enabled rules", err)
	}
	defer rows.Close()

	var rules []*types.NotificationRule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification rule", scanErr)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate enabled rules", err)
	}
	return rules, nil
}

// scanRule hydrates one rule from the standard column list.
func scanRule(row rowScanner) (*types.NotificationRule, error) {
	var (
		rule                            types.NotificationRule
		kind                            string
		checkMinutes, notifyMinutes     int
		lastCheck, lastNotify, estimate *time.Time
		weekdays                        []int32
	)
	err := row.Scan(
		&rule.ID,
		&rule.AccountID,
		&rule.UserID,
		&kind,
		&rule.Enabled,
		&rule.Threshold,
		&checkMinutes,
		&notifyMinutes,
		&rule.MaxNotifyCount,
		&rule.NotifyCount,
		&lastCheck,
		&lastNotify,
		&estimate,
		&weekdays,
		&rule.HoursBeforeReset,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Kind = types.RuleKind(kind)
	rule.CheckInterval = time.Duration(checkMinutes) * time.Minute
	rule.NotifyInterval = time.Duration(notifyMinutes) * time.Minute
	rule.LastCheckAt = timeOrZero(lastCheck)
	rule.LastNotifyAt = timeOrZero(lastNotify)
	rule.EstimateAt = timeOrZero(estimate)
	for _, d := range weekdays {
		rule.Weekdays = append(rule.Weekdays, time.Weekday(d))
	}
	return &rule, nil
}

// weekdaysToInts converts the weekday filter for storage in an int[] column.
func weekdaysToInts(days []time.Weekday) []int32 {
	if len(days) == 0 {
		return nil
	}
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}
