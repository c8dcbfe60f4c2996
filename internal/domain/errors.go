package domain

import "errors"

// Sentinel errors for enforcement decisions and downstream calls.
var (
	// ErrBudgetExceeded signals a spend reservation rejected by the ledger.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrKillSwitchActive signals a scope locked by the kill-switch.
	ErrKillSwitchActive = errors.New("kill switch active")
	// ErrCircuitOpen signals a circuit breaker rejecting calls to a target.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrStorageUnavailable signals an unreachable ledger or flag store.
	// The guard treats this as a deny (fail closed), never as an allow.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidProvider signals an unknown provider with no configured fallback.
	ErrInvalidProvider = errors.New("invalid provider")
	// ErrProviderError signals a downstream agent provider failure.
	ErrProviderError = errors.New("agent provider error")
	// ErrMissingOrg signals a request without a tenant identifier.
	ErrMissingOrg = errors.New("missing org id")
)
