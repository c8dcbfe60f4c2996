// Package memory provides an in-process db.Store for tests and
// single-instance deployments. Chosen at construction time, never via
// dynamic fallback.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/spendgate/spendgate/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type entry struct {
	value    []byte
	expireAt time.Time // zero = no expiry
}

// Store is a mutex-guarded map store. The single mutex makes Reserve a
// serialized critical section, which is exactly the admission-control
// guarantee the ledger needs.
type Store struct {
	mu    sync.Mutex
	data  map[string]entry
	clock func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]entry), clock: time.Now}
}

// NewStoreWithClock creates a store with an injected clock (test-only).
func NewStoreWithClock(clock func() time.Time) *Store {
	return &Store{data: make(map[string]entry), clock: clock}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value at the given key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{value: append([]byte(nil), value...)}
	return nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{value: append([]byte(nil), value...), expireAt: s.clock().Add(ttl)}
	return nil
}

// Del removes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Expire sets TTL on a key. With nx=true, only keys without an expiry are touched.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil
	}
	if nx && !e.expireAt.IsZero() {
		return nil
	}
	e.expireAt = s.clock().Add(ttl)
	s.data[key] = e
	return nil
}

// Reserve implements db.CounterStore under the store mutex: both counters are
// read, checked, and incremented without releasing the lock, so concurrent
// reservations for the same keys cannot jointly overspend.
func (s *Store) Reserve(_ context.Context, req db.ReserveRequest) (db.ReserveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	daily := s.floatLocked(req.DailyKey)
	monthly := s.floatLocked(req.MonthlyKey)

	overDaily := req.DailyCeil > 0 && daily+req.Delta > req.DailyCeil
	overMonthly := req.MonthlyCeil > 0 && monthly+req.Delta > req.MonthlyCeil
	if overDaily || overMonthly {
		return db.ReserveResult{Accepted: false, Daily: daily, Monthly: monthly}, nil
	}

	daily += req.Delta
	monthly += req.Delta
	s.setFloatLocked(req.DailyKey, daily, req.DailyTTL)
	s.setFloatLocked(req.MonthlyKey, monthly, req.MonthlyTTL)

	return db.ReserveResult{Accepted: true, Daily: daily, Monthly: monthly}, nil
}

// GetFloat returns the float counter at key, 0 if the key does not exist.
func (s *Store) GetFloat(_ context.Context, key string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.floatLocked(key), nil
}

func (s *Store) floatLocked(key string) float64 {
	e, ok := s.live(key)
	if !ok {
		return 0
	}
	val, err := strconv.ParseFloat(string(e.value), 64)
	if err != nil {
		return 0
	}
	return val
}

// setFloatLocked writes the counter, keeping an existing expiry (NX semantics).
func (s *Store) setFloatLocked(key string, val float64, ttl time.Duration) {
	expireAt := time.Time{}
	if prev, ok := s.data[key]; ok && !prev.expireAt.IsZero() {
		expireAt = prev.expireAt
	} else if ttl > 0 {
		expireAt = s.clock().Add(ttl)
	}
	s.data[key] = entry{
		value:    []byte(strconv.FormatFloat(val, 'f', -1, 64)),
		expireAt: expireAt,
	}
}

// live returns the entry if present and not expired, evicting lazily.
func (s *Store) live(key string) (entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expireAt.IsZero() && !s.clock().Before(e.expireAt) {
		delete(s.data, key)
		return entry{}, false
	}
	return e, true
}
