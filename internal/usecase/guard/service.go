// Package guard is the admission chain run before any paid work: kill-switch,
// rate limit, cost estimate, per-request ceiling, then the atomic budget
// reservation. Every outcome is a domain.Decision; a request that is not
// explicitly allowed spends nothing.
package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/domain"
	"github.com/spendgate/spendgate/internal/metrics"
)

// decision code label used for allowed outcomes in metrics.
const labelAllowed = "ALLOWED"

// Service runs the enforcement chain.
type Service struct {
	estimator Estimator
	ledger    Ledger
	kill      KillSwitch
	limiter   RateLimiter
	policies  PolicyResolver
	logger    *zap.Logger
	clock     func() time.Time
}

// New creates a guard service.
func New(est Estimator, led Ledger, kill KillSwitch, limiter RateLimiter, policies PolicyResolver, logger *zap.Logger) *Service {
	return &Service{
		estimator: est,
		ledger:    led,
		kill:      kill,
		limiter:   limiter,
		policies:  policies,
		logger:    logger,
		clock:     time.Now,
	}
}

// WithClock injects a clock (test-only).
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Enforce runs the admission chain for req. The returned error is non-nil
// only for malformed requests (missing org, unknown provider); operational
// denials, including storage failures, come back as deny Decisions.
func (s *Service) Enforce(ctx context.Context, req domain.Request) (domain.Decision, error) {
	if req.OrgID == "" {
		return domain.Decision{}, domain.ErrMissingOrg
	}

	if s.kill.IsActive(req.OrgID) {
		return s.deny(ctx, req.OrgID, domain.CodeKillSwitchActive, 0), nil
	}

	if rl := s.limiter.Allow(req.OrgID); !rl.Allowed {
		d := s.deny(ctx, req.OrgID, domain.CodeRateLimited, 0)
		d.RetryAfter = rl.ResetAt.Sub(s.clock())
		return d, nil
	}

	est, err := s.estimator.Estimate(req.AgentKey, req.Provider, req.Tokens)
	if err != nil {
		return domain.Decision{}, err
	}

	policy := s.policies.PolicyFor(req.OrgID)
	if policy.PerRequestLimitEUR > 0 && est.AmountEUR() > policy.PerRequestLimitEUR {
		d := s.deny(ctx, req.OrgID, domain.CodeBudgetExceeded, 0)
		d.Estimate = est
		return d, nil
	}

	res, err := s.ledger.ReserveAndCommit(ctx, req.OrgID, est.AmountEUR())
	if err != nil {
		// Fail closed: an unreachable ledger denies, it never waves through.
		s.logger.Error("Budget ledger unavailable",
			zap.String("org_id", req.OrgID), zap.Error(err))
		d := domain.Decision{
			Allowed:  false,
			Code:     domain.CodeStorageUnavailable,
			Estimate: est,
		}
		metrics.EnforceDecisionsTotal.WithLabelValues(req.OrgID, string(d.Code)).Inc()
		return d, nil
	}

	pct := res.Pct()
	d := domain.Decision{
		Allowed:    res.Accepted,
		Estimate:   est,
		Pct:        pct,
		DailySpend: res.DailyEUR,
		MonthSpend: res.MonthlyEUR,
		Status:     domain.StatusForPct(pct),
	}

	if res.Accepted {
		metrics.EnforceDecisionsTotal.WithLabelValues(req.OrgID, labelAllowed).Inc()
		metrics.BudgetSpendEUR.WithLabelValues(req.OrgID, "daily").Set(res.DailyEUR)
		metrics.BudgetSpendEUR.WithLabelValues(req.OrgID, "monthly").Set(res.MonthlyEUR)
		return d, nil
	}

	d.Code = domain.CodeBudgetExceeded
	metrics.EnforceDecisionsTotal.WithLabelValues(req.OrgID, string(d.Code)).Inc()
	s.logger.Warn("Budget exceeded",
		zap.String("org_id", req.OrgID),
		zap.String("agent_key", req.AgentKey),
		zap.Float64("estimate_eur", est.AmountEUR()),
		zap.Float64("pct", pct),
	)

	threshold := policy.ActivationThresholdPct
	if threshold <= 0 {
		threshold = 100
	}
	if pct >= threshold {
		s.kill.Activate(ctx, req.OrgID,
			fmt.Sprintf("budget at %.1f%% (threshold %.0f%%)", pct, threshold))
	}
	return d, nil
}

// deny builds a deny decision with best-effort budget context. The spend
// lookup is advisory; its failure never changes the outcome.
func (s *Service) deny(ctx context.Context, orgID string, code domain.Code, pct float64) domain.Decision {
	d := domain.Decision{Allowed: false, Code: code, Pct: pct}
	if res, err := s.ledger.CurrentSpend(ctx, orgID); err == nil {
		d.DailySpend = res.DailyEUR
		d.MonthSpend = res.MonthlyEUR
		if p := res.Pct(); p > d.Pct {
			d.Pct = p
		}
	}
	d.Status = domain.StatusForPct(d.Pct)
	metrics.EnforceDecisionsTotal.WithLabelValues(orgID, string(code)).Inc()
	return d
}
