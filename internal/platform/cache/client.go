package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key or field is not in the cache.
var ErrMiss = errors.New("cache miss")

// Options turns a redis:// or rediss:// URL into client options.
func Options(url string) (*redis.Options, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := Options(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Store is a thin byte-oriented wrapper over a Redis client.
type Store struct {
	client redis.UniversalClient
}

func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// HGet reads one field of a hash.
func (s *Store) HGet(ctx context.Context, key, field string) ([]byte, error) {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}
	return data, nil
}

// setIfCounter writes a hash field only while the counter still holds the
// expected value. A missing counter reads as 0.
var setIfCounter = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[3] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if tonumber(ARGV[4]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`)

// Counter reads an integer key. A missing key reads as 0.
func (s *Store) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return n, nil
}

// Bump increments the counter and deletes keys in one transaction.
func (s *Store) Bump(ctx context.Context, counter string, keys ...string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, counter)
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to bump counter: %w", err)
	}
	return nil
}

// HSetIfCounter is HSet guarded by a counter: the write is dropped, and false
// returned, when counter no longer equals want.
func (s *Store) HSetIfCounter(ctx context.Context, key, field string, value []byte, ttl time.Duration, counter string, want int64) (bool, error) {
	n, err := setIfCounter.Run(ctx, s.client, []string{key, counter},
		field, value, strconv.FormatInt(want, 10), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set in cache: %w", err)
	}
	return n == 1, nil
}

// Ping verifies the connection to Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
