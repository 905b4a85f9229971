package rules

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"questward/internal/types"
)

// TelemetryFetcher is the slice of the upstream transport the rule engine
// needs.
type TelemetryFetcher interface {
	FetchTelemetry(ctx context.Context, account *types.Account) (*types.Snapshot, error)
}

// SnapshotCache deduplicates telemetry fetches within one tick. Accounts
// sharing the same upstream identity share one snapshot per feature category;
// concurrent first fetches for the same key are collapsed via singleflight.
// The cache lives for exactly one tick and is then discarded.
type SnapshotCache struct {
	fetcher  TelemetryFetcher
	category types.TelemetryCategory

	group singleflight.Group

	mu    sync.RWMutex
	snaps map[string]*types.Snapshot
}

// NewSnapshotCache creates a cache for one tick over the given fetcher.
func NewSnapshotCache(fetcher TelemetryFetcher, category types.TelemetryCategory) *SnapshotCache {
	return &SnapshotCache{
		fetcher:  fetcher,
		category: category,
		snaps:    make(map[string]*types.Snapshot),
	}
}

// Get returns the cached snapshot for the account's upstream identity,
// fetching it once on first use. Fetch errors are not cached; the next caller
// retries.
func (c *SnapshotCache) Get(ctx context.Context, account *types.Account) (*types.Snapshot, error) {
	key := fmt.Sprintf("%s/%s", account.ExternalUID, c.category)

	c.mu.RLock()
	snap, ok := c.snaps[key]
	c.mu.RUnlock()
	if ok {
		return snap, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fetched, fetchErr := c.fetcher.FetchTelemetry(ctx, account)
		if fetchErr != nil {
			return nil, fetchErr
		}
		c.mu.Lock()
		c.snaps[key] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Snapshot), nil
}
