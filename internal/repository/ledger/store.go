package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/spendgate/spendgate/internal/db"
	"github.com/spendgate/spendgate/internal/domain/period"
)

// store is the consumer interface for ledger operations (ISP).
type store interface {
	Reserve(ctx context.Context, req db.ReserveRequest) (db.ReserveResult, error)
	GetFloat(ctx context.Context, key string) (float64, error)
}

// Store persists per-org spend counters keyed by calendar period.
// Keys: {prefix}ledger:{org}:daily:{2006-01-02} and :monthly:{2006-01}.
type Store struct {
	store    store
	prefix   string
	dailyTTL time.Duration
	monthTTL time.Duration
}

// Reservation is the storage-level outcome of a conditional commit.
type Reservation struct {
	Accepted bool
	Daily    float64
	Monthly  float64
}

// New creates a ledger store.
// dailyTTL is the TTL for daily keys (recommended: 48h).
// monthTTL is the TTL for monthly keys (recommended: 62 days).
func New(s store, prefix string, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{
		store:    s,
		prefix:   prefix,
		dailyTTL: dailyTTL,
		monthTTL: monthTTL,
	}
}

// Reserve atomically commits amount against both period ceilings for orgID.
// A denial leaves both counters untouched.
func (s *Store) Reserve(
	ctx context.Context, orgID string, amount, dailyCeil, monthCeil float64, now time.Time,
) (Reservation, error) {
	res, err := s.store.Reserve(ctx, db.ReserveRequest{
		DailyKey:    s.dailyKey(orgID, now),
		MonthlyKey:  s.monthlyKey(orgID, now),
		Delta:       amount,
		DailyCeil:   dailyCeil,
		MonthlyCeil: monthCeil,
		DailyTTL:    s.dailyTTL,
		MonthlyTTL:  s.monthTTL,
	})
	if err != nil {
		return Reservation{}, fmt.Errorf("ledger reserve %s: %w", orgID, err)
	}
	return Reservation{Accepted: res.Accepted, Daily: res.Daily, Monthly: res.Monthly}, nil
}

// Spend returns the committed daily and monthly totals for orgID.
// Missing keys read as 0.
func (s *Store) Spend(ctx context.Context, orgID string, now time.Time) (float64, float64, error) {
	daily, err := s.store.GetFloat(ctx, s.dailyKey(orgID, now))
	if err != nil {
		return 0, 0, fmt.Errorf("ledger daily spend %s: %w", orgID, err)
	}
	monthly, err := s.store.GetFloat(ctx, s.monthlyKey(orgID, now))
	if err != nil {
		return 0, 0, fmt.Errorf("ledger monthly spend %s: %w", orgID, err)
	}
	return daily, monthly, nil
}

func (s *Store) dailyKey(orgID string, t time.Time) string {
	return fmt.Sprintf("%sledger:%s:daily:%s", s.prefix, orgID, period.DailyKey(t))
}

func (s *Store) monthlyKey(orgID string, t time.Time) string {
	return fmt.Sprintf("%sledger:%s:monthly:%s", s.prefix, orgID, period.MonthlyKey(t))
}
