// Package ratelimit provides a per-org fixed-window request limiter with
// named tiers. It runs in-process; counters reset when the process restarts.
package ratelimit

import (
	"sync"
	"time"

	"github.com/spendgate/spendgate/internal/metrics"
)

// Tier names a request allowance per window.
type Tier struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Result reports the outcome of one admission check.
type Result struct {
	Allowed   bool
	Tier      string
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Config maps orgs to tiers.
type Config struct {
	Tiers       map[string]Tier
	DefaultTier string
	OrgTiers    map[string]string
}

// Limiter admits requests per org against its tier's fixed window.
type Limiter struct {
	cfg   Config
	clock func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		clock:   time.Now,
		windows: make(map[string]*window),
	}
}

// WithClock injects a clock (test-only).
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// Allow consumes one request slot for orgID. A denied request does not
// consume a slot.
func (l *Limiter) Allow(orgID string) Result {
	tier := l.tierFor(orgID)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[orgID]
	if !ok || now.Sub(w.start) >= tier.Window {
		w = &window{start: now}
		l.windows[orgID] = w
		l.pruneLocked(now)
	}

	resetAt := w.start.Add(tier.Window)
	if w.count >= tier.Limit {
		metrics.RateLimitDeniedTotal.WithLabelValues(tier.Name).Inc()
		return Result{Allowed: false, Tier: tier.Name, Limit: tier.Limit, Remaining: 0, ResetAt: resetAt}
	}

	w.count++
	return Result{
		Allowed:   true,
		Tier:      tier.Name,
		Limit:     tier.Limit,
		Remaining: tier.Limit - w.count,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) tierFor(orgID string) Tier {
	name, ok := l.cfg.OrgTiers[orgID]
	if !ok {
		name = l.cfg.DefaultTier
	}
	if t, ok := l.cfg.Tiers[name]; ok {
		return t
	}
	// Unknown tier names fall back to the default tier.
	return l.cfg.Tiers[l.cfg.DefaultTier]
}

// pruneLocked drops windows that ended more than one window ago. Runs
// opportunistically when a new window starts, so the map stays bounded by
// active orgs.
func (l *Limiter) pruneLocked(now time.Time) {
	for org, w := range l.windows {
		tier := l.tierFor(org)
		if now.Sub(w.start) >= 2*tier.Window {
			delete(l.windows, org)
		}
	}
}
