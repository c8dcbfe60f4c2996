package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/domain"
)

func testBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)
	b := New(Config{
		FailureThreshold: 3,
		BaseBackoff:      time.Second,
		MaxBackoff:       60 * time.Second,
		HalfOpenMaxCalls: 2,
	}, zap.NewNop())
	b.WithClock(func() time.Time { return now })
	return b, &now
}

func failOp(ctx context.Context) error { return errors.New("provider down") }

func okOp(ctx context.Context) error { return nil }

func TestExecute_TripsAfterConsecutiveFailures(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, "azure", failOp, nil); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	if got := b.State("azure"); got != StateOpen {
		t.Errorf("expected OPEN after 3 failures, got %s", got)
	}
}

func TestExecute_OpenRejectsWithoutInvokingOp(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, "azure", failOp, nil)
	}

	invoked := false
	err := b.Execute(ctx, "azure", func(ctx context.Context) error {
		invoked = true
		return nil
	}, nil)

	if invoked {
		t.Error("op must not run while circuit is open")
	}
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}

	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError, got %T", err)
	}
	if openErr.RetryAfter <= 0 {
		t.Errorf("expected positive RetryAfter, got %s", openErr.RetryAfter)
	}
}

func TestExecute_SuccessInClosedResetsFailureCount(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	b.Execute(ctx, "azure", failOp, nil)
	b.Execute(ctx, "azure", failOp, nil)
	b.Execute(ctx, "azure", okOp, nil)
	b.Execute(ctx, "azure", failOp, nil)
	b.Execute(ctx, "azure", failOp, nil)

	if got := b.State("azure"); got != StateClosed {
		t.Errorf("expected CLOSED after interleaved success, got %s", got)
	}
}

func TestExecute_ProbesAfterBackoffAndCloses(t *testing.T) {
	b, now := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, "azure", failOp, nil)
	}

	// Before the retry deadline the probe is still rejected.
	if err := b.Execute(ctx, "azure", okOp, nil); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen before deadline, got %v", err)
	}

	*now = now.Add(time.Second)

	// Two consecutive successful probes close the circuit.
	if err := b.Execute(ctx, "azure", okOp, nil); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if got := b.State("azure"); got != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after first probe, got %s", got)
	}
	if err := b.Execute(ctx, "azure", okOp, nil); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if got := b.State("azure"); got != StateClosed {
		t.Errorf("expected CLOSED after successful probes, got %s", got)
	}
}

func TestExecute_FailedProbeReopensWithLongerBackoff(t *testing.T) {
	b, now := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, "azure", failOp, nil)
	}

	*now = now.Add(time.Second)
	b.Execute(ctx, "azure", failOp, nil)

	if got := b.State("azure"); got != StateOpen {
		t.Fatalf("expected OPEN after failed probe, got %s", got)
	}

	// Second trip doubles the backoff: 1s is no longer enough.
	*now = now.Add(time.Second)
	if err := b.Execute(ctx, "azure", okOp, nil); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen within doubled backoff, got %v", err)
	}

	*now = now.Add(time.Second)
	if err := b.Execute(ctx, "azure", okOp, nil); err != nil {
		t.Errorf("expected probe after doubled backoff, got %v", err)
	}
}

func TestExecute_BackoffIsCapped(t *testing.T) {
	b, _ := testBreaker(t)

	if got := b.backoff(1); got != time.Second {
		t.Errorf("trip 1: expected 1s, got %s", got)
	}
	if got := b.backoff(3); got != 4*time.Second {
		t.Errorf("trip 3: expected 4s, got %s", got)
	}
	if got := b.backoff(20); got != 60*time.Second {
		t.Errorf("trip 20: expected cap 60s, got %s", got)
	}
}

func TestExecute_TargetsAreIndependent(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, "azure", failOp, nil)
	}

	if err := b.Execute(ctx, "local", okOp, nil); err != nil {
		t.Errorf("local target must stay closed: %v", err)
	}
	if got := b.State("azure"); got != StateOpen {
		t.Errorf("expected azure OPEN, got %s", got)
	}
	if got := b.State("local"); got != StateClosed {
		t.Errorf("expected local CLOSED, got %s", got)
	}
}

func TestExecute_FallbackReceivesError(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	var seen error
	err := b.Execute(ctx, "azure", failOp, func(e error) error {
		seen = e
		return nil
	})

	if err != nil {
		t.Errorf("fallback result must be returned, got %v", err)
	}
	if seen == nil {
		t.Error("fallback must receive the op error")
	}
}

func TestReset_ClosesCircuit(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, "azure", failOp, nil)
	}
	b.Reset("azure")

	if got := b.State("azure"); got != StateClosed {
		t.Fatalf("expected CLOSED after reset, got %s", got)
	}
	if err := b.Execute(ctx, "azure", okOp, nil); err != nil {
		t.Errorf("expected call to pass after reset: %v", err)
	}
}

func TestSnapshots_ListsAllTargets(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	b.Execute(ctx, "azure", okOp, nil)
	for i := 0; i < 3; i++ {
		b.Execute(ctx, "local", failOp, nil)
	}

	snaps := b.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}

	byTarget := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		byTarget[s.Target] = s
	}
	if byTarget["azure"].State != StateClosed {
		t.Errorf("expected azure CLOSED, got %s", byTarget["azure"].State)
	}
	if byTarget["local"].State != StateOpen {
		t.Errorf("expected local OPEN, got %s", byTarget["local"].State)
	}
	if byTarget["local"].NextRetryAt.IsZero() {
		t.Error("expected local NextRetryAt to be set")
	}
}
