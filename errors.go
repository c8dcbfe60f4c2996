package spendgate

import "github.com/spendgate/spendgate/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrBudgetExceeded     = domain.ErrBudgetExceeded
	ErrKillSwitchActive   = domain.ErrKillSwitchActive
	ErrCircuitOpen        = domain.ErrCircuitOpen
	ErrRateLimited        = domain.ErrRateLimited
	ErrStorageUnavailable = domain.ErrStorageUnavailable
	ErrInvalidProvider    = domain.ErrInvalidProvider
	ErrProviderError      = domain.ErrProviderError
	ErrMissingOrg         = domain.ErrMissingOrg
)
