package ledger

import (
	"context"
	"time"

	repo "github.com/spendgate/spendgate/internal/repository/ledger"
)

// Store is the persistence interface for spend counters. Implementations
// must make Reserve atomic: concurrent calls for the same org must never
// jointly commit past a ceiling.
type Store interface {
	Reserve(ctx context.Context, orgID string, amount, dailyCeil, monthCeil float64, now time.Time) (repo.Reservation, error)
	Spend(ctx context.Context, orgID string, now time.Time) (daily, monthly float64, err error)
}

// Limits are the budget ceilings for one org. Zero means unlimited.
type Limits struct {
	DailyEUR   float64
	MonthlyEUR float64
}

// LimitResolver returns the budget limits for an org.
type LimitResolver interface {
	LimitsFor(orgID string) Limits
}

// LimitResolverFunc adapts a function to LimitResolver.
type LimitResolverFunc func(orgID string) Limits

// LimitsFor implements LimitResolver.
func (f LimitResolverFunc) LimitsFor(orgID string) Limits { return f(orgID) }
