// Package usage builds per-org spend reports from the budget ledger and the
// kill-switch state. Read-only: reporting never reserves or mutates.
package usage

import (
	"context"
	"time"

	"github.com/spendgate/spendgate/internal/domain"
	"github.com/spendgate/spendgate/internal/domain/period"
	repo "github.com/spendgate/spendgate/internal/repository/killswitch"
	"github.com/spendgate/spendgate/internal/usecase/ledger"
)

// Ledger reads committed spend. See usecase/ledger (ISP).
type Ledger interface {
	CurrentSpend(ctx context.Context, orgID string) (ledger.Result, error)
}

// KillSwitch exposes flag state. See usecase/killswitch (ISP).
type KillSwitch interface {
	IsActive(scope string) bool
	Flag(scope string) (repo.Flag, bool)
}

// Window is one budget period in a report. Zero LimitEUR means unlimited,
// and RemainingEUR is then reported as 0.
type Window struct {
	SpentEUR     float64   `json:"spent_eur"`
	LimitEUR     float64   `json:"limit_eur"`
	RemainingEUR float64   `json:"remaining_eur"`
	Pct          float64   `json:"pct"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

// KillSwitchInfo describes an active flag in a report.
type KillSwitchInfo struct {
	Active      bool      `json:"active"`
	Reason      string    `json:"reason,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// Report is the spend summary for one org.
type Report struct {
	OrgID       string              `json:"org_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Daily       Window              `json:"daily"`
	Monthly     Window              `json:"monthly"`
	Status      domain.BudgetStatus `json:"status"`
	KillSwitch  KillSwitchInfo      `json:"kill_switch"`
}

// Service assembles usage reports.
type Service struct {
	ledger Ledger
	kill   KillSwitch
	clock  func() time.Time
}

// New creates a usage service.
func New(led Ledger, kill KillSwitch) *Service {
	return &Service{ledger: led, kill: kill, clock: time.Now}
}

// WithClock injects a clock (test-only).
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Report returns the current spend summary for orgID.
func (s *Service) Report(ctx context.Context, orgID string) (Report, error) {
	if orgID == "" {
		return Report{}, domain.ErrMissingOrg
	}

	res, err := s.ledger.CurrentSpend(ctx, orgID)
	if err != nil {
		return Report{}, err
	}

	now := s.clock()
	dayStart, dayEnd := period.DayBounds(now)
	monStart, monEnd := period.MonthBounds(now)

	r := Report{
		OrgID:       orgID,
		GeneratedAt: now,
		Daily:       window(res.DailyEUR, res.Limits.DailyEUR, res.DailyPct, dayStart, dayEnd),
		Monthly:     window(res.MonthlyEUR, res.Limits.MonthlyEUR, res.MonthlyPct, monStart, monEnd),
		Status:      domain.StatusForPct(res.Pct()),
	}

	if s.kill.IsActive(orgID) {
		r.KillSwitch.Active = true
		if f, ok := s.kill.Flag(orgID); ok {
			r.KillSwitch.Reason = f.Reason
			r.KillSwitch.ActivatedAt = f.ActivatedAt
		}
	}
	return r, nil
}

func window(spent, limit, pct float64, start, end time.Time) Window {
	w := Window{SpentEUR: spent, LimitEUR: limit, Pct: pct, Start: start, End: end}
	if limit > 0 {
		w.RemainingEUR = limit - spent
		if w.RemainingEUR < 0 {
			w.RemainingEUR = 0
		}
	}
	return w
}
