package domain

import "strconv"

// Estimate is the computed cost of one agent invocation. Ephemeral, never
// persisted.
type Estimate struct {
	agentKey   string
	provider   Provider
	tokens     int
	multiplier float64
	amountEUR  float64
}

// NewEstimate creates an Estimate. amountEUR must already be rounded to
// 4 decimal places by the estimator.
func NewEstimate(agentKey string, provider Provider, tokens int, multiplier, amountEUR float64) Estimate {
	return Estimate{
		agentKey:   agentKey,
		provider:   provider,
		tokens:     tokens,
		multiplier: multiplier,
		amountEUR:  amountEUR,
	}
}

// AgentKey returns the agent identifier the estimate was computed for.
func (e Estimate) AgentKey() string { return e.agentKey }

// Provider returns the provider whose price table was applied.
func (e Estimate) Provider() Provider { return e.provider }

// Tokens returns the token count used for the estimate.
func (e Estimate) Tokens() int { return e.tokens }

// Multiplier returns the applied policy multiplier (1.0 or 1.5).
func (e Estimate) Multiplier() float64 { return e.multiplier }

// AmountEUR returns the estimated cost in EUR, rounded to 4 places.
func (e Estimate) AmountEUR() float64 { return e.amountEUR }

// AmountString formats the amount with 4 decimal places for the
// X-Est-Cost-EUR header.
func (e Estimate) AmountString() string {
	return strconv.FormatFloat(e.amountEUR, 'f', 4, 64)
}
