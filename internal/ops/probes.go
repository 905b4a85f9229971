package ops

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseProbe reports readiness of the PostgreSQL pool.
type DatabaseProbe struct {
	pool *pgxpool.Pool
}

var _ HealthProbe = (*DatabaseProbe)(nil)

// NewDatabaseProbe creates a probe over the given pool.
func NewDatabaseProbe(pool *pgxpool.Pool) *DatabaseProbe {
	return &DatabaseProbe{pool: pool}
}

// Name implements HealthProbe.
func (p *DatabaseProbe) Name() string { return "database" }

// Check pings the database.
func (p *DatabaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
