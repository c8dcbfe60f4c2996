package health

import "context"

// StorePinger checks ledger storage availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks downstream provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
