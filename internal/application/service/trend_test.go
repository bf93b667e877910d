package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

type stubStore struct {
	hist      []model.MarketSnapshot
	err       error
	lastKey   string
	lastSince time.Time
}

func (s *stubStore) AppendSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error {
	return nil
}

func (s *stubStore) AppendAllocation(ctx context.Context, dec model.AllocationDecision, params model.ParamSet) error {
	return nil
}

func (s *stubStore) QueryHistory(ctx context.Context, marketKey string, since time.Time) ([]model.MarketSnapshot, error) {
	s.lastKey = marketKey
	s.lastSince = since
	return s.hist, s.err
}

func (s *stubStore) Close() error { return nil }

func TestAnalyzeSummarizesWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &stubStore{hist: []model.MarketSnapshot{
		{MarketKey: "m1", SupplyAPY: 0.06, Utilization: 0.9, Timestamp: base.Add(2 * time.Hour)},
		{MarketKey: "m1", SupplyAPY: 0.05, Utilization: 0.8, Timestamp: base.Add(time.Hour)},
		{MarketKey: "m1", SupplyAPY: 0.04, Utilization: 0.7, Timestamp: base},
	}}

	ta := NewTrendAnalyzer(store)
	ta.now = func() time.Time { return base.Add(3 * time.Hour) }

	sum, err := ta.Analyze(context.Background(), "m1", 30)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if math.Abs(sum.AvgSupplyAPY-0.05) > tol {
		t.Errorf("avg apy: got %v, want 0.05", sum.AvgSupplyAPY)
	}
	if math.Abs(sum.MinSupplyAPY-0.04) > tol || math.Abs(sum.MaxSupplyAPY-0.06) > tol {
		t.Errorf("apy range: got [%v, %v], want [0.04, 0.06]", sum.MinSupplyAPY, sum.MaxSupplyAPY)
	}
	if math.Abs(sum.AvgUtilization-0.8) > tol {
		t.Errorf("avg utilization: got %v, want 0.8", sum.AvgUtilization)
	}
	if sum.DataPoints != 3 {
		t.Errorf("data points: got %d, want 3", sum.DataPoints)
	}
	if !sum.Start.Equal(base) || !sum.End.Equal(base.Add(2*time.Hour)) {
		t.Errorf("window: got [%v, %v]", sum.Start, sum.End)
	}
	if store.lastKey != "m1" {
		t.Errorf("queried key %q", store.lastKey)
	}
	wantSince := base.Add(3 * time.Hour).AddDate(0, 0, -30)
	if !store.lastSince.Equal(wantSince) {
		t.Errorf("since: got %v, want %v", store.lastSince, wantSince)
	}
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	ta := NewTrendAnalyzer(&stubStore{})
	_, err := ta.Analyze(context.Background(), "ghost", 7)
	if !errors.Is(err, domain.ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestAnalyzeStoreError(t *testing.T) {
	boom := fmt.Errorf("%w: disk gone", domain.ErrPersistence)
	ta := NewTrendAnalyzer(&stubStore{err: boom})
	_, err := ta.Analyze(context.Background(), "m1", 7)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}
