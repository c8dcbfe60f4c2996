// Package killswitch holds the per-scope safety flags. Once a scope is
// tripped, every enforcement decision for it is a deny until an explicit
// administrative reset. Activation policy lives in the guard; this layer is
// the flag store plus single-shot alerting.
package killswitch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/metrics"
	repo "github.com/spendgate/spendgate/internal/repository/killswitch"
)

// ScopeGlobal denies every org when active.
const ScopeGlobal = "*"

// FlagStore is the persistence interface for kill-switch flags.
type FlagStore interface {
	Get(ctx context.Context, scope string) (repo.Flag, bool, error)
	Put(ctx context.Context, f repo.Flag) error
	Delete(ctx context.Context, scope string) error
}

// Alerter receives one event per activation.
type Alerter interface {
	KillSwitchActivated(scope, reason string, at time.Time)
}

// Service is the kill-switch controller. Reads are in-memory (checked on
// every request); writes are rare and serialized, with write-through to the
// optional store.
type Service struct {
	mu      sync.RWMutex
	flags   map[string]repo.Flag
	store   FlagStore
	alerter Alerter
	logger  *zap.Logger
	clock   func() time.Time
}

// New creates a controller with no flags set.
func New(logger *zap.Logger) *Service {
	return &Service{
		flags:  make(map[string]repo.Flag),
		logger: logger,
		clock:  time.Now,
	}
}

// WithStore attaches persistence and loads any existing flags for the given
// scopes (configured orgs plus the global scope). Load failures are logged,
// not fatal: the in-memory state remains authoritative for this instance.
func (s *Service) WithStore(ctx context.Context, store FlagStore, scopes []string) *Service {
	s.store = store
	for _, scope := range append([]string{ScopeGlobal}, scopes...) {
		f, found, err := store.Get(ctx, scope)
		if err != nil {
			s.logger.Warn("Failed to load kill-switch flag", zap.String("scope", scope), zap.Error(err))
			continue
		}
		if found {
			s.mu.Lock()
			s.flags[scope] = f
			s.mu.Unlock()
			s.logger.Info("Kill-switch flag loaded",
				zap.String("scope", scope),
				zap.String("reason", f.Reason),
				zap.Time("activated_at", f.ActivatedAt),
			)
		}
	}
	return s
}

// WithAlerter attaches an activation event sink.
func (s *Service) WithAlerter(a Alerter) *Service {
	s.alerter = a
	return s
}

// WithClock injects a clock (test-only).
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// IsActive reports whether scope (or the global scope) is tripped.
func (s *Service) IsActive(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.flags[ScopeGlobal]; ok {
		return true
	}
	_, ok := s.flags[scope]
	return ok
}

// Flag returns the activation record for scope, if any.
func (s *Service) Flag(scope string) (repo.Flag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flags[scope]
	return f, ok
}

// Activate trips the flag for scope. Idempotent: the alert event, metric
// increment, and store write happen exactly once per activation, not per
// repeated call.
func (s *Service) Activate(ctx context.Context, scope, reason string) {
	s.mu.Lock()
	if _, ok := s.flags[scope]; ok {
		s.mu.Unlock()
		return
	}
	f := repo.Flag{Scope: scope, Reason: reason, ActivatedAt: s.clock()}
	s.flags[scope] = f
	s.mu.Unlock()

	s.logger.Warn("Kill-switch activated",
		zap.String("scope", scope),
		zap.String("reason", reason),
	)
	metrics.KillSwitchActivationsTotal.WithLabelValues(scope).Inc()
	if s.alerter != nil {
		s.alerter.KillSwitchActivated(scope, reason, f.ActivatedAt)
	}

	if s.store != nil {
		if err := s.store.Put(ctx, f); err != nil {
			s.logger.Error("Failed to persist kill-switch flag",
				zap.String("scope", scope), zap.Error(err))
		}
	}
}

// Reset clears the flag for scope. Administrative action only.
func (s *Service) Reset(ctx context.Context, scope string) {
	s.mu.Lock()
	_, ok := s.flags[scope]
	delete(s.flags, scope)
	s.mu.Unlock()

	if ok {
		s.logger.Info("Kill-switch reset", zap.String("scope", scope))
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, scope); err != nil {
			s.logger.Error("Failed to delete kill-switch flag",
				zap.String("scope", scope), zap.Error(err))
		}
	}
}
