package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// AccountRepository defines the data access interface for linked accounts.
type AccountRepository interface {
	// ListEligible returns accounts whose feature flag for the given task
	// kind is enabled.
	ListEligible(ctx context.Context, kind TaskKind) ([]*Account, error)

	// DisableFeature switches off the feature flag backing the given task
	// kind. Used on account-terminal failures.
	DisableFeature(ctx context.Context, accountID string, kind TaskKind) error

	// UpdateLastRunTime records a successful run of the given task kind.
	UpdateLastRunTime(ctx context.Context, accountID string, kind TaskKind, at time.Time) error
}

// NotificationRuleStore defines the data access interface for per-account
// notification rules.
type NotificationRuleStore interface {
	// GetOrNone returns the rule for (accountID, kind), or nil when no rule
	// has been configured.
	GetOrNone(ctx context.Context, accountID string, kind RuleKind) (*NotificationRule, error)

	// Create inserts a newly configured rule.
	Create(ctx context.Context, rule *NotificationRule) error

	// Save persists only the named fields of the rule (last-write-wins on
	// narrow columns rather than full-record overwrite).
	Save(ctx context.Context, rule *NotificationRule, fields ...string) error

	// ListEnabled returns all enabled rules grouped for one tick.
	ListEnabled(ctx context.Context) ([]*NotificationRule, error)
}

// Transport executes per-account operations against the upstream service,
// either directly or through one proxy gateway.
type Transport interface {
	// Name identifies the transport in logs and stats ("direct" or the
	// gateway name).
	Name() string

	// PerformTask executes the task-specific operation for the account.
	// Account-terminal failures carry a distinguished AppError code; every
	// other failure is transient.
	PerformTask(ctx context.Context, account *Account, kind TaskKind) (*TaskResult, error)

	// FetchTelemetry retrieves a fresh telemetry snapshot for the account.
	FetchTelemetry(ctx context.Context, account *Account) (*Snapshot, error)
}

// GatewayProbe checks whether a gateway endpoint is reachable before a worker
// begins draining from it.
type GatewayProbe interface {
	IsHealthy(ctx context.Context, endpoint string) bool
}

// Deliverer sends a rendered notification to a user. Failures are non-fatal
// and reported but never retried synchronously.
type Deliverer interface {
	// Deliver returns a provider message reference on success.
	Deliver(ctx context.Context, userID string, content string) (string, error)
}

// ErrorReporter captures swallowed worker/run errors for offline inspection.
// Implementations must be fire-and-forget and never block.
type ErrorReporter interface {
	Capture(err error)
}
