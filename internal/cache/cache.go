package cache

import (
	"context"
	"time"

	"barbershop/backend/internal/domain"
)

// BusyCache keeps the external calendar's busy feed for a short while so
// slot listings do not hit the calendar script on every poll.
type BusyCache interface {
	Get(ctx context.Context, key string) ([]domain.BusyInterval, bool, error)
	Set(ctx context.Context, key string, value []domain.BusyInterval, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// BusyKey names the cache entry of one busy window.
func BusyKey(from, to time.Time) string {
	return "busy:" + from.UTC().Format(time.RFC3339) + ":" + to.UTC().Format(time.RFC3339)
}

type NoopBusyCache struct{}

func (NoopBusyCache) Get(_ context.Context, _ string) ([]domain.BusyInterval, bool, error) {
	return nil, false, nil
}

func (NoopBusyCache) Set(_ context.Context, _ string, _ []domain.BusyInterval, _ time.Duration) error {
	return nil
}

func (NoopBusyCache) Delete(_ context.Context, _ string) error {
	return nil
}
