package db

import (
	"context"
	"time"
)

// Store is the storage facade for budget counters and kill-switch flags.
// Consumers use the narrow sub-interfaces (ISP); the facade exists for the
// composition root only.
type Store interface {
	Pinger
	KVStore
	CounterStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// ReserveRequest asks for an atomic conditional increment of the daily and
// monthly spend counters. A ceiling <= 0 means unlimited. TTLs are applied
// with NX semantics so repeated reservations do not push expiry forward.
type ReserveRequest struct {
	DailyKey    string
	MonthlyKey  string
	Delta       float64
	DailyCeil   float64
	MonthlyCeil float64
	DailyTTL    time.Duration
	MonthlyTTL  time.Duration
}

// ReserveResult reports the outcome of a reservation. Daily and Monthly are
// the counter values after the call: post-increment when Accepted, unchanged
// pre-increment values otherwise.
type ReserveResult struct {
	Accepted bool
	Daily    float64
	Monthly  float64
}

// CounterStore provides atomic spend-counter operations. Reserve must commit
// either both increments or neither: no interleaving of concurrent calls for
// the same keys may observe a pre-increment value and still jointly commit
// past a ceiling.
type CounterStore interface {
	Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error)
	GetFloat(ctx context.Context, key string) (float64, error)
}
