// Package ledger is the budget admission ledger: it decides whether an
// estimated spend fits the org's remaining daily and monthly budget, and
// commits it atomically when it does. A rejected reservation never mutates
// state.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/spendgate/spendgate/internal/domain"
)

// DefaultStorageTimeout bounds one ledger round-trip. The guard gates every
// request, so a slow backend must turn into a fast fail-closed deny.
const DefaultStorageTimeout = 150 * time.Millisecond

// Result is the outcome of a reservation attempt. On acceptance the totals
// are post-commit; on denial they are the unchanged pre-commit totals and
// Pct carries the would-be percentage that caused the rejection.
type Result struct {
	Accepted   bool
	DailyEUR   float64
	MonthlyEUR float64
	DailyPct   float64
	MonthlyPct float64
	Limits     Limits
}

// Pct returns the binding percentage: the larger of the two period
// utilizations, ignoring unlimited periods.
func (r Result) Pct() float64 {
	if r.DailyPct > r.MonthlyPct {
		return r.DailyPct
	}
	return r.MonthlyPct
}

// Service coordinates reservations against the counter store.
type Service struct {
	store   Store
	limits  LimitResolver
	timeout time.Duration
	clock   func() time.Time
}

// New creates a ledger service.
func New(store Store, limits LimitResolver) *Service {
	return &Service{
		store:   store,
		limits:  limits,
		timeout: DefaultStorageTimeout,
		clock:   time.Now,
	}
}

// WithTimeout overrides the per-call storage timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithClock injects a clock (test-only).
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// ReserveAndCommit atomically admits amount against the org's budgets.
// Storage failures surface as domain.ErrStorageUnavailable; callers must
// treat that as a deny.
func (s *Service) ReserveAndCommit(ctx context.Context, orgID string, amount float64) (Result, error) {
	now := s.clock()
	limits := s.limits.LimitsFor(orgID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.store.Reserve(ctx, orgID, amount, limits.DailyEUR, limits.MonthlyEUR, now)
	if err != nil {
		return Result{}, fmt.Errorf("reserve %s: %w: %w", orgID, domain.ErrStorageUnavailable, err)
	}

	out := Result{
		Accepted:   res.Accepted,
		DailyEUR:   res.Daily,
		MonthlyEUR: res.Monthly,
		Limits:     limits,
	}
	if res.Accepted {
		out.DailyPct = pct(res.Daily, limits.DailyEUR)
		out.MonthlyPct = pct(res.Monthly, limits.MonthlyEUR)
	} else {
		// Report the percentage the commit would have reached.
		out.DailyPct = pct(res.Daily+amount, limits.DailyEUR)
		out.MonthlyPct = pct(res.Monthly+amount, limits.MonthlyEUR)
	}
	return out, nil
}

// CurrentSpend returns the committed totals and their budget utilization.
func (s *Service) CurrentSpend(ctx context.Context, orgID string) (Result, error) {
	now := s.clock()
	limits := s.limits.LimitsFor(orgID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	daily, monthly, err := s.store.Spend(ctx, orgID, now)
	if err != nil {
		return Result{}, fmt.Errorf("spend %s: %w: %w", orgID, domain.ErrStorageUnavailable, err)
	}

	return Result{
		Accepted:   true,
		DailyEUR:   daily,
		MonthlyEUR: monthly,
		DailyPct:   pct(daily, limits.DailyEUR),
		MonthlyPct: pct(monthly, limits.MonthlyEUR),
		Limits:     limits,
	}, nil
}

// pct computes utilization; unlimited budgets report 0.
func pct(spent, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spent / limit * 100
}
