// Package redis provides a cache.Store backed by Redis so request-tier cache
// entries can be shared across router processes. Keys are namespaced with a
// prefix and expire through Redis TTLs.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wayfind-labs/wayfind/runtime/router/cache"
)

const (
	defaultPrefix = "wayfind:request:"
	storeName     = "cache-redis"

	// scanBatch bounds how many keys each SCAN page returns during Clear
	// and Len.
	scanBatch = 256
)

type (
	// Options configures the Redis store.
	Options struct {
		// Client is a connected Redis client. Required.
		Client *goredis.Client

		// Prefix namespaces the cache keys. Defaults to
		// "wayfind:request:".
		Prefix string
	}

	// Store implements cache.Store on top of Redis.
	Store struct {
		rdb    *goredis.Client
		prefix string
	}
)

var _ cache.Store = (*Store)(nil)

// New returns a Store backed by Redis.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: opts.Client, prefix: prefix}, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string { return storeName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.rdb.Ping(ctx).Err()
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, payload, ttl).Err()
}

// Clear implements cache.Store. Only keys under the configured prefix are
// removed.
func (s *Store) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Len implements cache.Store.
func (s *Store) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
