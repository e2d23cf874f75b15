package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/astrozeta/psicoapp/internal/platform/cache"
)

// AvailabilityCache holds computed free starts per psychologist. Any write to
// a psychologist's calendar invalidates the entry and advances its version;
// Set is dropped when the version read before computing is no longer current,
// so a result computed before a concurrent booking is never stored.
type AvailabilityCache interface {
	Get(ctx context.Context, psychologistID uuid.UUID, day string) ([]time.Time, bool, error)
	Version(ctx context.Context, psychologistID uuid.UUID) (int64, error)
	Set(ctx context.Context, psychologistID uuid.UUID, day string, version int64, starts []time.Time) error
	Invalidate(ctx context.Context, psychologistID uuid.UUID) error
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, uuid.UUID, string) ([]time.Time, bool, error) {
	return nil, false, nil
}
func (NoopCache) Version(context.Context, uuid.UUID) (int64, error)               { return 0, nil }
func (NoopCache) Set(context.Context, uuid.UUID, string, int64, []time.Time) error { return nil }
func (NoopCache) Invalidate(context.Context, uuid.UUID) error                      { return nil }

// RedisCache stores availability as JSON arrays of epoch milliseconds. Entries
// are keyed by psychologist and the clinic-local date the window was computed
// on, so a new day never serves yesterday's window.
type RedisCache struct {
	store *cache.Store
	ttl   time.Duration
}

func NewRedisCache(store *cache.Store, ttl time.Duration) *RedisCache {
	return &RedisCache{store: store, ttl: ttl}
}

func availabilityKey(psychologistID uuid.UUID) string {
	return "availability:" + psychologistID.String()
}

func versionKey(psychologistID uuid.UUID) string {
	return availabilityKey(psychologistID) + ":version"
}

func (c *RedisCache) Version(ctx context.Context, psychologistID uuid.UUID) (int64, error) {
	return c.store.Counter(ctx, versionKey(psychologistID))
}

func (c *RedisCache) Get(ctx context.Context, psychologistID uuid.UUID, day string) ([]time.Time, bool, error) {
	data, err := c.store.HGet(ctx, availabilityKey(psychologistID), day)
	if errors.Is(err, cache.ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ms []int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, false, fmt.Errorf("decode cached availability: %w", err)
	}
	starts := make([]time.Time, len(ms))
	for i, v := range ms {
		starts[i] = time.UnixMilli(v)
	}
	return starts, true, nil
}

func (c *RedisCache) Set(ctx context.Context, psychologistID uuid.UUID, day string, version int64, starts []time.Time) error {
	ms := make([]int64, len(starts))
	for i, s := range starts {
		ms[i] = s.UnixMilli()
	}
	data, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	_, err = c.store.HSetIfCounter(ctx, availabilityKey(psychologistID), day, data, c.ttl, versionKey(psychologistID), version)
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, psychologistID uuid.UUID) error {
	return c.store.Bump(ctx, versionKey(psychologistID), availabilityKey(psychologistID))
}
