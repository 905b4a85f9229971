package db

import (
	"context"
	"fmt"
	"time"

	"questward/internal/types"
)

// AccountRepository provides data access for the accounts table. It
// implements types.AccountRepository.
//
// Mutations are deliberately narrow: the runner only ever flips one feature
// flag or stamps one last-run column, so updates name exactly those columns
// (last-write-wins) instead of overwriting whole records.
type AccountRepository struct {
	db DBTX
}

var _ types.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates an AccountRepository backed by the given
// database connection (pool or transaction).
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// featureColumns maps a task kind to its flag and last-run columns. Column
// names come from this closed map, never from caller input, so interpolating
// them into SQL is safe.
var featureColumns = map[types.TaskKind]struct {
	flag    string
	lastRun string
}{
	types.TaskCheckIn:      {flag: "check_in_enabled", lastRun: "last_check_in"},
	types.TaskRedeemPoints: {flag: "redeem_points_enabled", lastRun: "last_redeem_run"},
	types.TaskRedeemCodes:  {flag: "redeem_codes_enabled", lastRun: "last_redeem_run"},
	types.TaskRuleTick:     {flag: "reminders_enabled", lastRun: "last_rule_tick"},
}

const accountColumns = `
	id, user_id, external_uid, region,
	check_in_enabled, redeem_points_enabled, redeem_codes_enabled, reminders_enabled,
	last_check_in, last_redeem_run, last_rule_tick,
	created_at, updated_at`

// ListEligible returns accounts whose feature flag for the given task kind is
// enabled, ordered by creation time for stable run composition.
func (r *AccountRepository) ListEligible(ctx context.Context, kind types.TaskKind) ([]*types.Account, error) {
	cols, ok := featureColumns[kind]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("unknown task kind %s", kind),
			nil,
		)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE `+cols.flag+` = TRUE
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list eligible accounts", err)
	}
	defer rows.Close()

	var accounts []*types.Account
	for rows.Next() {
		account, scanErr := scanAccount(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate eligible accounts", err)
	}
	return accounts, nil
}

// DisableFeature switches off the feature flag backing the given task kind.
func (r *AccountRepository) DisableFeature(ctx context.Context, accountID string, kind types.TaskKind) error {
	cols, ok := featureColumns[kind]
	if !ok {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("unknown task kind %s", kind),
			nil,
		)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET `+cols.flag+` = FALSE, updated_at = NOW() WHERE id = $1`,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to disable feature", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeInternalDB,
			fmt.Sprintf("account %s not found", accountID),
			nil,
		)
	}
	return nil
}

// UpdateLastRunTime records a successful run of the given task kind.
func (r *AccountRepository) UpdateLastRunTime(ctx context.Context, accountID string, kind types.TaskKind, at time.Time) error {
	cols, ok := featureColumns[kind]
	if !ok {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("unknown task kind %s", kind),
			nil,
		)
	}

	_, err := r.db.Exec(ctx,
		`UPDATE accounts SET `+cols.lastRun+` = $1, updated_at = NOW() WHERE id = $2`,
		at, accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last run time", err)
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount hydrates one account from the standard column list.
func scanAccount(row rowScanner) (*types.Account, error) {
	var (
		account                           types.Account
		region                            string
		lastCheckIn, lastRedeem, lastTick *time.Time
	)
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.ExternalUID,
		&region,
		&account.CheckInEnabled,
		&account.RedeemPointsEnabled,
		&account.RedeemCodesEnabled,
		&account.RemindersEnabled,
		&lastCheckIn,
		&lastRedeem,
		&lastTick,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan account", err)
	}
	account.Region = types.Region(region)
	account.LastCheckIn = timeOrZero(lastCheckIn)
	account.LastRedeemRun = timeOrZero(lastRedeem)
	account.LastRuleTick = timeOrZero(lastTick)
	return &account, nil
}
