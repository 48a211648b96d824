package cache

import (
	"context"
	"time"

	"posadmin/backend/internal/domain"
)

// StatsCache stores the last consolidated dashboard view so a restarted
// instance (or an external reader) can serve it before the first recompute.
type StatsCache interface {
	Get(ctx context.Context) (*domain.DerivedStats, bool, error)
	Set(ctx context.Context, value *domain.DerivedStats, ttl time.Duration) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context) (*domain.DerivedStats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ *domain.DerivedStats, _ time.Duration) error {
	return nil
}
