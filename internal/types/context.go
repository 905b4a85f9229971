package types

import (
	"context"
)

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID stores the run ID in the context so transports and repositories
// can correlate their log lines with one coordinator run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the run ID from the context, or "" when absent.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
