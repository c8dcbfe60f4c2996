package domain

import "time"

// Code is the machine-readable reason attached to a deny decision.
type Code string

const (
	// CodeBudgetExceeded maps to HTTP 402.
	CodeBudgetExceeded Code = "BUDGET_EXCEEDED"
	// CodeKillSwitchActive maps to HTTP 402; cleared only by admin reset.
	CodeKillSwitchActive Code = "KILL_SWITCH_ACTIVE"
	// CodeCircuitOpen maps to HTTP 503.
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
	// CodeRateLimited maps to HTTP 429.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeStorageUnavailable maps to HTTP 503; fail-closed deny.
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// Decision is the outcome of one enforcement check. On allow, Estimate and
// the budget fields describe the committed reservation. On deny, Pct carries
// the would-be percentage that triggered the rejection and the ledger is
// untouched.
type Decision struct {
	Allowed    bool
	Code       Code // empty when Allowed
	Estimate   Estimate
	Pct        float64 // budget percentage after (or would-be, on deny) this request
	DailySpend float64
	MonthSpend float64
	Status     BudgetStatus
	RetryAfter time.Duration // for RATE_LIMITED / CIRCUIT_OPEN denials
}

// BudgetStatus is the coarse health tier of a tenant's budget.
type BudgetStatus string

const (
	// BudgetHealthy means spend is below the warning threshold.
	BudgetHealthy BudgetStatus = "healthy"
	// BudgetWarning means spend reached 80% of a limit.
	BudgetWarning BudgetStatus = "warning"
	// BudgetCritical means spend reached 95% of a limit.
	BudgetCritical BudgetStatus = "critical"
	// BudgetEmergency means spend reached 100% of a limit.
	BudgetEmergency BudgetStatus = "emergency"
)

// StatusForPct maps a budget percentage to its tier.
func StatusForPct(pct float64) BudgetStatus {
	switch {
	case pct >= 100:
		return BudgetEmergency
	case pct >= 95:
		return BudgetCritical
	case pct >= 80:
		return BudgetWarning
	default:
		return BudgetHealthy
	}
}
