package spendgate

import (
	"time"

	"github.com/spendgate/spendgate/internal/domain"
	usageuc "github.com/spendgate/spendgate/internal/usecase/usage"
)

// Request is one admission check. OrgID is required; AgentKey, Provider and
// Tokens fall back to configured defaults when empty.
type Request struct {
	OrgID    string
	AgentKey string
	Provider string
	Tokens   int
}

// Decision is the outcome of one enforcement check. On allow the spend
// fields describe the committed reservation; on deny Pct carries the
// would-be percentage and the ledger is untouched.
type Decision struct {
	Allowed         bool
	Code            string // empty when Allowed
	Provider        string
	Tokens          int
	EstimatedEUR    float64
	Pct             float64
	DailySpendEUR   float64
	MonthlySpendEUR float64
	Status          string
	RetryAfter      time.Duration // for RATE_LIMITED denials
}

// Window is one budget period in a usage report. Zero LimitEUR means
// unlimited.
type Window struct {
	SpentEUR     float64
	LimitEUR     float64
	RemainingEUR float64
	Pct          float64
	Start        time.Time
	End          time.Time
}

// KillSwitchFlag is the record behind an active kill-switch.
type KillSwitchFlag struct {
	Scope       string
	Reason      string
	ActivatedAt time.Time
}

// UsageReport is the spend summary for one org.
type UsageReport struct {
	OrgID       string
	GeneratedAt time.Time
	Daily       Window
	Monthly     Window
	Status      string
	KillSwitch  KillSwitchFlag
	KillActive  bool
}

func decisionFromDomain(d domain.Decision) Decision {
	return Decision{
		Allowed:         d.Allowed,
		Code:            string(d.Code),
		Provider:        string(d.Estimate.Provider()),
		Tokens:          d.Estimate.Tokens(),
		EstimatedEUR:    d.Estimate.AmountEUR(),
		Pct:             d.Pct,
		DailySpendEUR:   d.DailySpend,
		MonthlySpendEUR: d.MonthSpend,
		Status:          string(d.Status),
		RetryAfter:      d.RetryAfter,
	}
}

func usageFromDomain(r usageuc.Report) UsageReport {
	return UsageReport{
		OrgID:       r.OrgID,
		GeneratedAt: r.GeneratedAt,
		Daily:       windowFromDomain(r.Daily),
		Monthly:     windowFromDomain(r.Monthly),
		Status:      string(r.Status),
		KillActive:  r.KillSwitch.Active,
		KillSwitch: KillSwitchFlag{
			Reason:      r.KillSwitch.Reason,
			ActivatedAt: r.KillSwitch.ActivatedAt,
		},
	}
}

func windowFromDomain(w usageuc.Window) Window {
	return Window{
		SpentEUR:     w.SpentEUR,
		LimitEUR:     w.LimitEUR,
		RemainingEUR: w.RemainingEUR,
		Pct:          w.Pct,
		Start:        w.Start,
		End:          w.End,
	}
}
