// Package types defines the core domain model shared by all Questward
// components: linked game accounts, maintenance task kinds, notification
// rules, and the error taxonomy used across the runner and evaluators.
package types

import (
	"time"
)

// TaskKind identifies one category of periodic per-account maintenance job.
// Each kind has its own scheduler entry, its own re-entrancy guard, and its
// own eligibility filter against the accounts table.
type TaskKind string

const (
	// TaskCheckIn is the daily reward check-in.
	TaskCheckIn TaskKind = "check_in"

	// TaskRedeemPoints spends accumulated points on the configured reward.
	TaskRedeemPoints TaskKind = "redeem_points"

	// TaskRedeemCodes redeems pending promotional codes.
	TaskRedeemCodes TaskKind = "redeem_codes"

	// TaskRuleTick is the reminder evaluation pass. It carries no upstream
	// mutation of its own; it fetches telemetry and drives the rule engine.
	TaskRuleTick TaskKind = "rule_tick"
)

// AllTaskKinds lists every task kind the scheduler can drive.
var AllTaskKinds = []TaskKind{TaskCheckIn, TaskRedeemPoints, TaskRedeemCodes, TaskRuleTick}

// Valid reports whether k is a recognized task kind.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskCheckIn, TaskRedeemPoints, TaskRedeemCodes, TaskRuleTick:
		return true
	}
	return false
}

// Region classifies where a game account lives. Gateway proxies only front
// the global upstream; mainland accounts must use the direct transport.
type Region string

const (
	RegionGlobal   Region = "global"
	RegionMainland Region = "mainland"
)

// GatewayEligible reports whether accounts in this region may be processed
// through a proxy gateway. Ineligible accounts are handed straight to the
// direct worker's private share.
func (r Region) GatewayEligible() bool {
	return r == RegionGlobal
}

// Account represents one user's linked game account. It is owned by the
// AccountRepository; the runner mutates only feature flags (on terminal
// failures) and last-run timestamps.
type Account struct {
	ID     string
	UserID string

	// ExternalUID is the account's identity on the upstream game service.
	// Accounts sharing an ExternalUID share telemetry snapshots within a run.
	ExternalUID string

	Region Region

	// Per-feature toggles. A disabled flag removes the account from that
	// task kind's eligible set.
	CheckInEnabled      bool
	RedeemPointsEnabled bool
	RedeemCodesEnabled  bool
	RemindersEnabled    bool

	// Per-feature last successful run times, zero if never run.
	LastCheckIn   time.Time
	LastRedeemRun time.Time
	LastRuleTick  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeatureEnabled reports whether the feature backing the given task kind is
// switched on for this account.
func (a *Account) FeatureEnabled(kind TaskKind) bool {
	switch kind {
	case TaskCheckIn:
		return a.CheckInEnabled
	case TaskRedeemPoints:
		return a.RedeemPointsEnabled
	case TaskRedeemCodes:
		return a.RedeemCodesEnabled
	case TaskRuleTick:
		return a.RemindersEnabled
	}
	return false
}

// TaskResult is the outcome of one per-account task execution. A non-empty
// Message is user-facing and handed to the dispatcher for delivery.
type TaskResult struct {
	AccountID string
	UserID    string
	Kind      TaskKind

	// Message is the user-facing outcome text, empty when nothing should
	// be delivered (e.g. already checked in today).
	Message string
}

// DailyResetHour is the hour (in the account's server timezone) at which the
// upstream service resets daily obligations.
const DailyResetHour = 4

// NextDailyReset returns the next upstream daily reset instant at or after now.
func NextDailyReset(now time.Time) time.Time {
	reset := time.Date(now.Year(), now.Month(), now.Day(), DailyResetHour, 0, 0, 0, now.Location())
	if !reset.After(now) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset
}
