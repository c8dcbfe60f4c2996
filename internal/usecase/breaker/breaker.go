// Package breaker isolates failing downstream targets behind a per-target
// CLOSED/OPEN/HALF_OPEN state machine. One failing provider never blocks
// calls to a healthy one.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/domain"
	"github.com/spendgate/spendgate/internal/metrics"
)

// State is the circuit position for one target.
type State int

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = iota
	// StateHalfOpen admits a bounded number of trial calls.
	StateHalfOpen
	// StateOpen rejects calls until the retry deadline.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning. Zero fields take defaults.
type Config struct {
	// FailureThreshold is the consecutive-failure count that trips CLOSED to OPEN.
	FailureThreshold int
	// BaseBackoff is the OPEN duration after the first trip.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration
	// HalfOpenMaxCalls bounds concurrent trial calls; that many consecutive
	// successes close the circuit.
	HalfOpenMaxCalls int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		BaseBackoff:      time.Second,
		MaxBackoff:       60 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return c
}

// OpenError is returned when a target's circuit rejects a call.
type OpenError struct {
	Target     string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: circuit open, retry after %s", e.Target, e.RetryAfter)
}

func (e *OpenError) Unwrap() error { return domain.ErrCircuitOpen }

// Snapshot is a point-in-time view of one target's circuit.
type Snapshot struct {
	Target       string
	State        State
	FailureCount int
	NextRetryAt  time.Time
}

// Breaker is a registry of per-target circuits. Targets are created on first
// use and live for the process lifetime.
type Breaker struct {
	cfg    Config
	logger *zap.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	targets map[string]*circuit
}

type circuit struct {
	mu                sync.Mutex
	name              string
	state             State
	failureCount      int
	trips             int // consecutive opens since last full close
	nextRetryAt       time.Time
	halfOpenInFlight  int
	halfOpenSuccesses int
}

// New creates a Breaker.
func New(cfg Config, logger *zap.Logger) *Breaker {
	return &Breaker{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		clock:   time.Now,
		targets: make(map[string]*circuit),
	}
}

// WithClock injects a clock (test-only).
func (b *Breaker) WithClock(clock func() time.Time) *Breaker {
	b.clock = clock
	return b
}

// Execute runs op through the circuit for target. The op must carry its own
// timeout; the breaker only reacts to the returned error. When the circuit
// rejects the call or op fails, fallback (if non-nil) is invoked with the
// error and its result returned instead.
func (b *Breaker) Execute(ctx context.Context, target string, op func(context.Context) error, fallback func(error) error) error {
	c := b.target(target)

	if err := b.before(c); err != nil {
		if fallback != nil {
			return fallback(err)
		}
		return err
	}

	err := op(ctx)
	b.after(c, err == nil)

	if err != nil {
		if fallback != nil {
			return fallback(err)
		}
		return err
	}
	return nil
}

// State returns the current state for target, creating it if needed.
func (b *Breaker) State(target string) State {
	c := b.target(target)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshots lists all registered targets for the administrative surface.
func (b *Breaker) Snapshots() []Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Snapshot, 0, len(b.targets))
	for _, c := range b.targets {
		c.mu.Lock()
		out = append(out, Snapshot{
			Target:       c.name,
			State:        c.state,
			FailureCount: c.failureCount,
			NextRetryAt:  c.nextRetryAt,
		})
		c.mu.Unlock()
	}
	return out
}

// Reset forces target back to CLOSED and clears all counters.
func (b *Breaker) Reset(target string) {
	c := b.target(target)
	c.mu.Lock()
	from := c.state
	c.state = StateClosed
	c.failureCount = 0
	c.trips = 0
	c.halfOpenInFlight = 0
	c.halfOpenSuccesses = 0
	c.nextRetryAt = time.Time{}
	c.mu.Unlock()

	if from != StateClosed {
		b.recordTransition(target, StateClosed)
	}
	b.logger.Info("Circuit reset", zap.String("target", target), zap.String("from", from.String()))
}

func (b *Breaker) target(name string) *circuit {
	b.mu.RLock()
	c, ok := b.targets[name]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.targets[name]; ok {
		return c
	}
	c = &circuit{name: name}
	b.targets[name] = c
	metrics.CircuitState.WithLabelValues(name).Set(float64(StateClosed))
	return c
}

func (b *Breaker) before(c *circuit) error {
	now := b.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return nil

	case StateOpen:
		if now.Before(c.nextRetryAt) {
			return &OpenError{Target: c.name, RetryAfter: c.nextRetryAt.Sub(now)}
		}
		// Retry deadline reached: probe lazily.
		c.state = StateHalfOpen
		c.halfOpenInFlight = 1
		c.halfOpenSuccesses = 0
		b.recordTransition(c.name, StateHalfOpen)
		b.logger.Info("Circuit half-open", zap.String("target", c.name))
		return nil

	case StateHalfOpen:
		if c.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return &OpenError{Target: c.name, RetryAfter: b.cfg.BaseBackoff}
		}
		c.halfOpenInFlight++
		return nil

	default:
		return fmt.Errorf("unknown circuit state %d for %s", c.state, c.name)
	}
}

func (b *Breaker) after(c *circuit, success bool) {
	now := b.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		switch c.state {
		case StateClosed:
			c.failureCount = 0
		case StateHalfOpen:
			c.halfOpenInFlight--
			c.halfOpenSuccesses++
			if c.halfOpenSuccesses >= b.cfg.HalfOpenMaxCalls {
				c.state = StateClosed
				c.failureCount = 0
				c.trips = 0
				c.halfOpenInFlight = 0
				c.halfOpenSuccesses = 0
				b.recordTransition(c.name, StateClosed)
				b.logger.Info("Circuit closed", zap.String("target", c.name))
			}
		case StateOpen:
			// No calls pass through OPEN; nothing to record.
		}
		return
	}

	switch c.state {
	case StateClosed:
		c.failureCount++
		if c.failureCount >= b.cfg.FailureThreshold {
			b.open(c, now)
		}
	case StateHalfOpen:
		// A failed probe reopens with extended backoff.
		c.halfOpenInFlight = 0
		c.halfOpenSuccesses = 0
		b.open(c, now)
	case StateOpen:
	}
}

// open must be called with c.mu held.
func (b *Breaker) open(c *circuit, now time.Time) {
	c.trips++
	backoff := b.backoff(c.trips)
	c.state = StateOpen
	c.nextRetryAt = now.Add(backoff)
	b.recordTransition(c.name, StateOpen)
	b.logger.Warn("Circuit opened",
		zap.String("target", c.name),
		zap.Int("failure_count", c.failureCount),
		zap.Duration("backoff", backoff),
	)
}

// backoff grows exponentially with consecutive trips, capped at MaxBackoff.
func (b *Breaker) backoff(trips int) time.Duration {
	d := b.cfg.BaseBackoff
	for i := 1; i < trips; i++ {
		d *= 2
		if d >= b.cfg.MaxBackoff {
			return b.cfg.MaxBackoff
		}
	}
	if d > b.cfg.MaxBackoff {
		return b.cfg.MaxBackoff
	}
	return d
}

func (b *Breaker) recordTransition(target string, to State) {
	metrics.CircuitState.WithLabelValues(target).Set(float64(to))
	metrics.CircuitTransitionsTotal.WithLabelValues(target, to.String()).Inc()
}
