package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spendgate/spendgate/internal/domain"
	repo "github.com/spendgate/spendgate/internal/repository/killswitch"
	"github.com/spendgate/spendgate/internal/usecase/ledger"
)

type fakeLedger struct {
	result ledger.Result
	err    error
}

func (f *fakeLedger) CurrentSpend(ctx context.Context, orgID string) (ledger.Result, error) {
	return f.result, f.err
}

type fakeKill struct {
	flags map[string]repo.Flag
}

func (f *fakeKill) IsActive(scope string) bool {
	_, ok := f.flags[scope]
	return ok
}

func (f *fakeKill) Flag(scope string) (repo.Flag, bool) {
	fl, ok := f.flags[scope]
	return fl, ok
}

func TestReport_Windows(t *testing.T) {
	now := time.Date(2025, 6, 14, 15, 30, 0, 0, time.UTC)
	led := &fakeLedger{result: ledger.Result{
		DailyEUR: 82, MonthlyEUR: 420,
		DailyPct: 82, MonthlyPct: 42,
		Limits: ledger.Limits{DailyEUR: 100, MonthlyEUR: 1000},
	}}
	svc := New(led, &fakeKill{flags: map[string]repo.Flag{}}).
		WithClock(func() time.Time { return now })

	r, err := svc.Report(context.Background(), "org1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.OrgID != "org1" {
		t.Errorf("expected org1, got %q", r.OrgID)
	}
	if r.Daily.SpentEUR != 82 || r.Daily.RemainingEUR != 18 {
		t.Errorf("expected daily 82 spent / 18 remaining, got %v/%v", r.Daily.SpentEUR, r.Daily.RemainingEUR)
	}
	if want := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC); !r.Daily.Start.Equal(want) {
		t.Errorf("expected daily start %s, got %s", want, r.Daily.Start)
	}
	if want := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC); !r.Daily.End.Equal(want) {
		t.Errorf("expected daily end %s, got %s", want, r.Daily.End)
	}
	if want := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC); !r.Monthly.End.Equal(want) {
		t.Errorf("expected monthly end %s, got %s", want, r.Monthly.End)
	}
	if r.Status != domain.BudgetWarning {
		t.Errorf("expected warning at 82%%, got %s", r.Status)
	}
	if r.KillSwitch.Active {
		t.Error("expected inactive kill-switch")
	}
}

func TestReport_OverspendClampsRemaining(t *testing.T) {
	led := &fakeLedger{result: ledger.Result{
		DailyEUR: 105, MonthlyEUR: 105,
		DailyPct: 105, MonthlyPct: 10.5,
		Limits: ledger.Limits{DailyEUR: 100, MonthlyEUR: 1000},
	}}
	svc := New(led, &fakeKill{flags: map[string]repo.Flag{}})

	r, err := svc.Report(context.Background(), "org1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Daily.RemainingEUR != 0 {
		t.Errorf("expected remaining clamped to 0, got %v", r.Daily.RemainingEUR)
	}
	if r.Status != domain.BudgetEmergency {
		t.Errorf("expected emergency, got %s", r.Status)
	}
}

func TestReport_UnlimitedBudget(t *testing.T) {
	led := &fakeLedger{result: ledger.Result{DailyEUR: 50, MonthlyEUR: 50}}
	svc := New(led, &fakeKill{flags: map[string]repo.Flag{}})

	r, err := svc.Report(context.Background(), "org1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Daily.RemainingEUR != 0 || r.Daily.LimitEUR != 0 {
		t.Errorf("unlimited budget must report 0 limit and remaining, got %v/%v", r.Daily.LimitEUR, r.Daily.RemainingEUR)
	}
	if r.Status != domain.BudgetHealthy {
		t.Errorf("expected healthy, got %s", r.Status)
	}
}

func TestReport_IncludesKillSwitch(t *testing.T) {
	at := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	led := &fakeLedger{result: ledger.Result{Limits: ledger.Limits{DailyEUR: 100, MonthlyEUR: 1000}}}
	kill := &fakeKill{flags: map[string]repo.Flag{
		"org1": {Scope: "org1", Reason: "budget at 120.0%", ActivatedAt: at},
	}}
	svc := New(led, kill)

	r, err := svc.Report(context.Background(), "org1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.KillSwitch.Active {
		t.Fatal("expected active kill-switch")
	}
	if r.KillSwitch.Reason != "budget at 120.0%" {
		t.Errorf("unexpected reason %q", r.KillSwitch.Reason)
	}
	if !r.KillSwitch.ActivatedAt.Equal(at) {
		t.Errorf("expected activation time %s, got %s", at, r.KillSwitch.ActivatedAt)
	}
}

func TestReport_MissingOrg(t *testing.T) {
	svc := New(&fakeLedger{}, &fakeKill{flags: map[string]repo.Flag{}})

	if _, err := svc.Report(context.Background(), ""); !errors.Is(err, domain.ErrMissingOrg) {
		t.Errorf("expected ErrMissingOrg, got %v", err)
	}
}

func TestReport_StorageError(t *testing.T) {
	svc := New(&fakeLedger{err: domain.ErrStorageUnavailable}, &fakeKill{flags: map[string]repo.Flag{}})

	if _, err := svc.Report(context.Background(), "org1"); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}
