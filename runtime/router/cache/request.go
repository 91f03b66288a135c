// Package cache implements the two memoization tiers of the planning
// service: a request cache keyed by the exact (query, user, role) triple and
// a structural cache keyed by the query's structural shape. Cache failures
// are absorbed; a request is never failed by its cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/wayfind-labs/wayfind/runtime/router/telemetry"
)

// DefaultRequestTTL is the request-tier entry lifetime.
const DefaultRequestTTL = 5 * time.Minute

// RequestKey digests the normalized query plus caller identity into a cache
// key.
func RequestKey(normalizedQuery, userID, role string) string {
	h := sha256.New()
	h.Write([]byte(normalizedQuery))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(role))
	return hex.EncodeToString(h.Sum(nil))
}

type (
	// Store is the request-tier backend: an expiring byte store. The
	// in-process Memory store is the default; a Redis-backed store can serve
	// multi-instance deployments.
	Store interface {
		Get(ctx context.Context, key string) ([]byte, bool, error)
		Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
		Clear(ctx context.Context) error
		Len(ctx context.Context) (int, error)
	}

	// Request is the exact-request tier. Backend errors are logged and
	// reported as misses.
	Request struct {
		store  Store
		ttl    time.Duration
		logger telemetry.Logger

		mu     sync.Mutex
		hits   uint64
		misses uint64
	}

	// RequestOptions configures a Request tier.
	RequestOptions struct {
		// Store defaults to an in-process Memory store.
		Store Store

		// TTL defaults to DefaultRequestTTL.
		TTL time.Duration

		// Logger defaults to a no-op logger.
		Logger telemetry.Logger
	}
)

// NewRequest builds the request tier.
func NewRequest(opts RequestOptions) *Request {
	store := opts.Store
	if store == nil {
		store = NewMemory()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Request{store: store, ttl: ttl, logger: logger}
}

// Get returns the cached payload for the key, if any.
func (r *Request) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn(ctx, "request cache read failed", "error", err.Error())
		r.count(false)
		return nil, false
	}
	r.count(ok)
	return payload, ok
}

// Set stores the payload under the key for the configured TTL.
func (r *Request) Set(ctx context.Context, key string, payload []byte) {
	if err := r.store.Set(ctx, key, payload, r.ttl); err != nil {
		r.logger.Warn(ctx, "request cache write failed", "error", err.Error())
	}
}

// Clear empties the tier.
func (r *Request) Clear(ctx context.Context) error {
	return r.store.Clear(ctx)
}

// Len returns the number of live entries.
func (r *Request) Len(ctx context.Context) int {
	n, err := r.store.Len(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Counters returns the accumulated hit and miss counts.
func (r *Request) Counters() (hits, misses uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}

func (r *Request) count(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

// Memory is the in-process Store: a mutex-guarded map with absolute expiry
// per entry, evicted lazily on access.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Store. An expired entry is removed and reported as a miss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expires) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && m.now().After(cur.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.payload, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.mu.Lock()
	m.entries[key] = memoryEntry{payload: cp, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// Len implements Store, counting only live entries.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if !m.now().After(e.expires) {
			n++
		}
	}
	return n, nil
}
