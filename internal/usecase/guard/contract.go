package guard

import (
	"context"

	"github.com/spendgate/spendgate/internal/domain"
	"github.com/spendgate/spendgate/internal/usecase/ledger"
	"github.com/spendgate/spendgate/internal/usecase/ratelimit"
)

// Estimator prices one invocation. See usecase/estimator (ISP).
type Estimator interface {
	Estimate(agentKey string, provider domain.Provider, tokens int) (domain.Estimate, error)
}

// Ledger admits estimated spend against org budgets. See usecase/ledger (ISP).
type Ledger interface {
	ReserveAndCommit(ctx context.Context, orgID string, amount float64) (ledger.Result, error)
	CurrentSpend(ctx context.Context, orgID string) (ledger.Result, error)
}

// KillSwitch gates and trips per-scope safety flags. See usecase/killswitch (ISP).
type KillSwitch interface {
	IsActive(scope string) bool
	Activate(ctx context.Context, scope, reason string)
}

// RateLimiter admits requests per org. See usecase/ratelimit (ISP).
type RateLimiter interface {
	Allow(orgID string) ratelimit.Result
}

// Policy is the per-org enforcement tuning beyond the budget ceilings.
type Policy struct {
	// PerRequestLimitEUR rejects any single estimate above it. Zero disables.
	PerRequestLimitEUR float64
	// ActivationThresholdPct trips the org kill-switch when a denied
	// reservation's would-be percentage reaches it. Zero means 100.
	ActivationThresholdPct float64
}

// PolicyResolver returns the enforcement policy for an org.
type PolicyResolver interface {
	PolicyFor(orgID string) Policy
}

// PolicyResolverFunc adapts a function to PolicyResolver.
type PolicyResolverFunc func(orgID string) Policy

// PolicyFor implements PolicyResolver.
func (f PolicyResolverFunc) PolicyFor(orgID string) Policy { return f(orgID) }
