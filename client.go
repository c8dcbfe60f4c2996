package spendgate

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/db"
	dbMemory "github.com/spendgate/spendgate/internal/db/memory"
	dbRedis "github.com/spendgate/spendgate/internal/db/redis"
	"github.com/spendgate/spendgate/internal/domain"
	"github.com/spendgate/spendgate/internal/metrics"
	killrepo "github.com/spendgate/spendgate/internal/repository/killswitch"
	ledgerrepo "github.com/spendgate/spendgate/internal/repository/ledger"
	estimatoruc "github.com/spendgate/spendgate/internal/usecase/estimator"
	guarduc "github.com/spendgate/spendgate/internal/usecase/guard"
	killswitchuc "github.com/spendgate/spendgate/internal/usecase/killswitch"
	ledgeruc "github.com/spendgate/spendgate/internal/usecase/ledger"
	ratelimituc "github.com/spendgate/spendgate/internal/usecase/ratelimit"
	usageuc "github.com/spendgate/spendgate/internal/usecase/usage"
)

const defaultReadinessTimeout = 10 * time.Second

// Counter retention mirrors the server: daily keys live 48h, monthly keys
// two full months.
const (
	dailyTTL   = 48 * time.Hour
	monthlyTTL = 62 * 24 * time.Hour
)

// Внутренние интерфейсы для подмены в тестах.
type guardUseCase interface {
	Enforce(ctx context.Context, req domain.Request) (domain.Decision, error)
}

type usageUseCase interface {
	Report(ctx context.Context, orgID string) (usageuc.Report, error)
}

type killSwitchUseCase interface {
	IsActive(scope string) bool
	Activate(ctx context.Context, scope, reason string)
	Reset(ctx context.Context, scope string)
	Flag(scope string) (killrepo.Flag, bool)
}

// Client is the embedded spendgate entry point: budget enforcement without
// the HTTP server, for callers that gate spend in-process.
type Client struct {
	store    db.Store
	guardSvc guardUseCase
	usageSvc usageUseCase
	killSvc  killSwitchUseCase
}

// New creates a spendgate Client. Without options it keeps all counters in
// process memory; WithRedis makes them durable and shared across instances.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:          "memory",
		keyPrefix:       "spendgate:",
		defaultProvider: "azure",
		defaultTokens:   1000,
		defaultBudget: Budget{
			DailyLimitEUR:          100,
			MonthlyLimitEUR:        1000,
			PerRequestLimitEUR:     10,
			ActivationThresholdPct: 100,
		},
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.prices == nil {
		cfg.prices = map[string]float64{
			"azure": 0.00002,
			"local": 0.000001,
		}
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("spendgate: database not ready: %w", err)
	}

	metrics.RegisterEnforcementMetrics()
	return wireClient(ctx, store, cfg), nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return dbMemory.NewStore(), nil
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
			DB:       cfg.db,
		})
		if err != nil {
			return nil, fmt.Errorf("spendgate: create redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("spendgate: unknown driver %q", cfg.driver)
	}
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) *Client {
	ledgerRepo := ledgerrepo.New(store, cfg.keyPrefix, dailyTTL, monthlyTTL)
	killRepo := killrepo.New(store, cfg.keyPrefix)

	prices := make(map[domain.Provider]float64, len(cfg.prices))
	for name, p := range cfg.prices {
		prices[domain.Provider(name)] = p
	}
	estimatorSvc := estimatoruc.New(estimatoruc.Config{
		EURPerToken:     prices,
		DefaultProvider: domain.Provider(cfg.defaultProvider),
		DefaultTokens:   cfg.defaultTokens,
	})

	budgetFor := func(orgID string) Budget {
		if b, ok := cfg.budgets[orgID]; ok {
			return b
		}
		return cfg.defaultBudget
	}

	ledgerSvc := ledgeruc.New(ledgerRepo, ledgeruc.LimitResolverFunc(func(orgID string) ledgeruc.Limits {
		b := budgetFor(orgID)
		return ledgeruc.Limits{DailyEUR: b.DailyLimitEUR, MonthlyEUR: b.MonthlyLimitEUR}
	}))

	scopes := make([]string, 0, len(cfg.budgets))
	for org := range cfg.budgets {
		scopes = append(scopes, org)
	}
	killSvc := killswitchuc.New(cfg.logger).WithStore(ctx, killRepo, scopes)

	limiter := ratelimituc.New(limiterConfig(cfg))

	guardSvc := guarduc.New(estimatorSvc, ledgerSvc, killSvc, limiter,
		guarduc.PolicyResolverFunc(func(orgID string) guarduc.Policy {
			b := budgetFor(orgID)
			return guarduc.Policy{
				PerRequestLimitEUR:     b.PerRequestLimitEUR,
				ActivationThresholdPct: b.ActivationThresholdPct,
			}
		}), cfg.logger)

	return &Client{
		store:    store,
		guardSvc: guardSvc,
		usageSvc: usageuc.New(ledgerSvc, killSvc),
		killSvc:  killSvc,
	}
}

// limiterConfig translates the public tier options. With no tiers
// configured the limiter gets one tier it can never exhaust.
func limiterConfig(cfg *clientConfig) ratelimituc.Config {
	if len(cfg.tiers) == 0 {
		return ratelimituc.Config{
			Tiers: map[string]ratelimituc.Tier{
				"unlimited": {Name: "unlimited", Limit: math.MaxInt32, Window: time.Minute},
			},
			DefaultTier: "unlimited",
		}
	}
	tiers := make(map[string]ratelimituc.Tier, len(cfg.tiers))
	for name, rl := range cfg.tiers {
		tiers[name] = ratelimituc.Tier{Name: name, Limit: rl.Requests, Window: rl.Window}
	}
	return ratelimituc.Config{
		Tiers:       tiers,
		DefaultTier: cfg.defaultTier,
		OrgTiers:    cfg.orgTiers,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Enforce runs the full admission pipeline for one request: kill-switch,
// rate limit, cost estimate, per-request cap, atomic budget reservation.
// A deny comes back as a Decision, not an error; errors are reserved for
// invalid input.
func (c *Client) Enforce(ctx context.Context, req Request) (Decision, error) {
	d, err := c.guardSvc.Enforce(ctx, domain.Request{
		OrgID:    req.OrgID,
		AgentKey: req.AgentKey,
		Provider: domain.Provider(req.Provider),
		Tokens:   req.Tokens,
	})
	if err != nil {
		return Decision{}, err
	}
	return decisionFromDomain(d), nil
}

// Usage returns the current spend report for an org.
func (c *Client) Usage(ctx context.Context, orgID string) (UsageReport, error) {
	r, err := c.usageSvc.Report(ctx, orgID)
	if err != nil {
		return UsageReport{}, err
	}
	return usageFromDomain(r), nil
}

// KillSwitch returns the administrative kill-switch surface.
func (c *Client) KillSwitch() *KillSwitchService {
	return &KillSwitchService{svc: c.killSvc}
}

// KillSwitchService exposes manual flag control.
type KillSwitchService struct {
	svc killSwitchUseCase
}

// Active reports whether scope (or the global scope "*") is tripped.
func (s *KillSwitchService) Active(scope string) bool {
	return s.svc.IsActive(scope)
}

// Activate trips the flag for scope. Idempotent.
func (s *KillSwitchService) Activate(ctx context.Context, scope, reason string) {
	s.svc.Activate(ctx, scope, reason)
}

// Reset clears the flag for scope.
func (s *KillSwitchService) Reset(ctx context.Context, scope string) {
	s.svc.Reset(ctx, scope)
}

// Flag returns the flag record for scope, if set.
func (s *KillSwitchService) Flag(scope string) (KillSwitchFlag, bool) {
	f, ok := s.svc.Flag(scope)
	if !ok {
		return KillSwitchFlag{}, false
	}
	return KillSwitchFlag{Scope: f.Scope, Reason: f.Reason, ActivatedAt: f.ActivatedAt}, true
}
