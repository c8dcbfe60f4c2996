// Package estimator computes the estimated EUR cost of one agent invocation.
// Pure and deterministic: no state, no I/O.
package estimator

import (
	"fmt"
	"math"
	"strings"

	"github.com/spendgate/spendgate/internal/domain"
)

// DirectorMultiplier is the policy surcharge for director-class agents.
const DirectorMultiplier = 1.5

// Config holds the price table and fallbacks.
type Config struct {
	// EURPerToken maps provider name to its flat per-token price.
	EURPerToken map[domain.Provider]float64
	// DefaultProvider is applied when the request omits a provider.
	// An unknown provider with no default is rejected.
	DefaultProvider domain.Provider
	// DefaultTokens is applied when the request omits a token count.
	DefaultTokens int
	// Multiplier overrides DirectorMultiplier when > 0.
	Multiplier float64
}

// Service implements cost estimation over a fixed price table.
type Service struct {
	prices          map[domain.Provider]float64
	defaultProvider domain.Provider
	defaultTokens   int
	multiplier      float64
}

// New creates a Service from cfg.
func New(cfg Config) *Service {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = DirectorMultiplier
	}
	prices := make(map[domain.Provider]float64, len(cfg.EURPerToken))
	for p, v := range cfg.EURPerToken {
		prices[p] = v
	}
	return &Service{
		prices:          prices,
		defaultProvider: cfg.DefaultProvider,
		defaultTokens:   cfg.DefaultTokens,
		multiplier:      mult,
	}
}

// Estimate computes the cost of tokens on provider for agentKey.
// Zero values fall back to the configured defaults; an unknown provider is
// rejected with domain.ErrInvalidProvider unless a default is configured.
func (s *Service) Estimate(agentKey string, provider domain.Provider, tokens int) (domain.Estimate, error) {
	if provider == "" {
		provider = s.defaultProvider
	}
	price, ok := s.prices[provider]
	if !ok {
		if s.defaultProvider == "" {
			return domain.Estimate{}, fmt.Errorf("estimate %q: %w", provider, domain.ErrInvalidProvider)
		}
		provider = s.defaultProvider
		price, ok = s.prices[provider]
		if !ok {
			return domain.Estimate{}, fmt.Errorf("estimate %q: %w", provider, domain.ErrInvalidProvider)
		}
	}

	if tokens <= 0 {
		tokens = s.defaultTokens
	}

	mult := 1.0
	if isDirector(agentKey) {
		mult = s.multiplier
	}

	amount := round4(float64(tokens) * price * mult)
	return domain.NewEstimate(agentKey, provider, tokens, mult, amount), nil
}

// isDirector matches the director-tier agent naming convention.
func isDirector(agentKey string) bool {
	return strings.Contains(strings.ToLower(agentKey), "director")
}

// round4 rounds half-up to 4 decimal places.
func round4(v float64) float64 {
	return math.Floor(v*10000+0.5) / 10000
}
