package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spendgate/spendgate/internal/db"
)

type mockCounterStore struct {
	lastReq db.ReserveRequest
	res     db.ReserveResult
	floats  map[string]float64
	err     error
}

func (m *mockCounterStore) Reserve(_ context.Context, req db.ReserveRequest) (db.ReserveResult, error) {
	m.lastReq = req
	return m.res, m.err
}

func (m *mockCounterStore) GetFloat(_ context.Context, key string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.floats[key], nil
}

var testNow = time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)

func TestReserve_KeyLayout(t *testing.T) {
	m := &mockCounterStore{res: db.ReserveResult{Accepted: true, Daily: 4, Monthly: 4}}
	s := New(m, "spendgate:", 48*time.Hour, 62*24*time.Hour)

	res, err := s.Reserve(context.Background(), "org1", 4, 100, 1000, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Accepted {
		t.Error("expected accepted")
	}

	if m.lastReq.DailyKey != "spendgate:ledger:org1:daily:2025-06-14" {
		t.Errorf("unexpected daily key: %s", m.lastReq.DailyKey)
	}
	if m.lastReq.MonthlyKey != "spendgate:ledger:org1:monthly:2025-06" {
		t.Errorf("unexpected monthly key: %s", m.lastReq.MonthlyKey)
	}
	if m.lastReq.DailyTTL != 48*time.Hour {
		t.Errorf("unexpected daily TTL: %v", m.lastReq.DailyTTL)
	}
	if m.lastReq.MonthlyTTL != 62*24*time.Hour {
		t.Errorf("unexpected monthly TTL: %v", m.lastReq.MonthlyTTL)
	}
}

func TestReserve_WrapsStorageError(t *testing.T) {
	sentinel := errors.New("connection refused")
	m := &mockCounterStore{err: sentinel}
	s := New(m, "spendgate:", 48*time.Hour, 62*24*time.Hour)

	_, err := s.Reserve(context.Background(), "org1", 4, 100, 1000, testNow)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestSpend_ReadsBothPeriods(t *testing.T) {
	m := &mockCounterStore{floats: map[string]float64{
		"spendgate:ledger:org1:daily:2025-06-14": 12.5,
		"spendgate:ledger:org1:monthly:2025-06":  80.25,
	}}
	s := New(m, "spendgate:", 48*time.Hour, 62*24*time.Hour)

	daily, monthly, err := s.Spend(context.Background(), "org1", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if daily != 12.5 || monthly != 80.25 {
		t.Errorf("expected 12.5/80.25, got %v/%v", daily, monthly)
	}
}

func TestSpend_MissingOrgIsZero(t *testing.T) {
	m := &mockCounterStore{floats: map[string]float64{}}
	s := New(m, "spendgate:", 48*time.Hour, 62*24*time.Hour)

	daily, monthly, err := s.Spend(context.Background(), "ghost", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if daily != 0 || monthly != 0 {
		t.Errorf("expected 0/0, got %v/%v", daily, monthly)
	}
}
