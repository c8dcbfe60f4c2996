package spendgate

import (
	"time"

	"go.uber.org/zap"
)

// Budget holds the spend ceilings for one org. Zero limits mean unlimited.
type Budget struct {
	DailyLimitEUR          float64
	MonthlyLimitEUR        float64
	PerRequestLimitEUR     float64
	ActivationThresholdPct float64
}

// RateLimit is one request-rate tier: at most Requests per Window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "memory" or "redis"
	addrs    []string
	username string
	password string
	db       int

	keyPrefix string

	defaultBudget Budget
	budgets       map[string]Budget

	prices          map[string]float64
	defaultProvider string
	defaultTokens   int

	tiers       map[string]RateLimit
	defaultTier string
	orgTiers    map[string]string

	logger *zap.Logger
}

// WithRedis configures the client to persist counters and flags in Redis.
// Without it the client keeps everything in process memory.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedisAuth sets the Redis ACL username and logical database.
func WithRedisAuth(username string, db int) Option {
	return optionFunc(func(c *clientConfig) {
		c.username = username
		c.db = db
	})
}

// WithKeyPrefix sets the storage key prefix. Default: "spendgate:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithDefaultBudget sets the budget applied to orgs without an explicit one.
// Default: 100 EUR/day, 1000 EUR/month, 10 EUR per request.
func WithDefaultBudget(b Budget) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultBudget = b
	})
}

// WithOrgBudget sets the budget for one org.
func WithOrgBudget(orgID string, b Budget) Option {
	return optionFunc(func(c *clientConfig) {
		if c.budgets == nil {
			c.budgets = make(map[string]Budget)
		}
		c.budgets[orgID] = b
	})
}

// WithPrice sets the flat EUR-per-token price for a provider.
// Defaults: azure 0.00002, local 0.000001.
func WithPrice(provider string, eurPerToken float64) Option {
	return optionFunc(func(c *clientConfig) {
		if c.prices == nil {
			c.prices = make(map[string]float64)
		}
		c.prices[provider] = eurPerToken
	})
}

// WithDefaultProvider sets the provider assumed when a request omits one.
// Default: "azure".
func WithDefaultProvider(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultProvider = name
	})
}

// WithDefaultTokens sets the token count assumed when a request omits one.
// Default: 1000.
func WithDefaultTokens(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultTokens = n
	})
}

// WithRateLimitTier registers a named request-rate tier. The first
// registered tier becomes the default unless WithDefaultTier overrides it.
// Without any tiers the client does not rate-limit.
func WithRateLimitTier(name string, rl RateLimit) Option {
	return optionFunc(func(c *clientConfig) {
		if c.tiers == nil {
			c.tiers = make(map[string]RateLimit)
		}
		c.tiers[name] = rl
		if c.defaultTier == "" {
			c.defaultTier = name
		}
	})
}

// WithDefaultTier sets the tier applied to orgs without an explicit mapping.
func WithDefaultTier(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultTier = name
	})
}

// WithOrgTier maps an org to a rate-limit tier.
func WithOrgTier(orgID, tier string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.orgTiers == nil {
			c.orgTiers = make(map[string]string)
		}
		c.orgTiers[orgID] = tier
	})
}

// WithLogger enables structured logging for enforcement events.
// Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
