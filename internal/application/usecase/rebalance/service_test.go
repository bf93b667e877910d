package rebalance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"yieldopt/internal/application/service"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
	"yieldopt/internal/infrastructure/solver"
)

type mockSource struct {
	snaps []model.MarketSnapshot
	err   error
}

func (m *mockSource) Fetch(ctx context.Context) ([]model.MarketSnapshot, error) {
	return m.snaps, m.err
}

type mockStore struct {
	snapBatches [][]model.MarketSnapshot
	allocations []model.AllocationDecision
	snapErr     error
	allocErr    error
}

func (m *mockStore) AppendSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error {
	if m.snapErr != nil {
		return m.snapErr
	}
	m.snapBatches = append(m.snapBatches, snaps)
	return nil
}

func (m *mockStore) AppendAllocation(ctx context.Context, dec model.AllocationDecision, params model.ParamSet) error {
	if m.allocErr != nil {
		return m.allocErr
	}
	m.allocations = append(m.allocations, dec)
	return nil
}

func (m *mockStore) QueryHistory(ctx context.Context, marketKey string, since time.Time) ([]model.MarketSnapshot, error) {
	return nil, nil
}

func (m *mockStore) Close() error { return nil }

type mockCache struct {
	sets int
	err  error
}

func (m *mockCache) SetLatest(ctx context.Context, snaps []model.MarketSnapshot) error {
	m.sets++
	return m.err
}

func (m *mockCache) Latest(ctx context.Context, marketKey string) (*model.MarketSnapshot, error) {
	return nil, nil
}

func (m *mockCache) Close() error { return nil }

type mockExecutor struct {
	calls int
	dec   model.AllocationDecision
	err   error
}

func (m *mockExecutor) Reallocate(ctx context.Context, snaps []model.MarketSnapshot, dec model.AllocationDecision) (string, error) {
	m.calls++
	m.dec = dec
	return "0xhash", m.err
}

type mockSink struct {
	lines []string
}

func (m *mockSink) WriteLine(line string) error {
	m.lines = append(m.lines, line)
	return nil
}

func newTestService(src *mockSource, store *mockStore, cache *mockCache, exec *mockExecutor, sink *mockSink) *Service {
	deps := ServiceDeps{
		Source:    src,
		Store:     store,
		Allocator: service.NewAllocator(solver.NewSimplex()),
		Sink:      sink,
	}
	if cache != nil {
		deps.Cache = cache
	}
	if exec != nil {
		deps.Executor = exec
	}
	return NewService(deps)
}

func defaultParams() model.ParamSet {
	return model.ParamSet{AvailableFunds: 1_000_000, MaxRisk: 0.2, MaxUtilization: 0.85}
}

func TestRunHappyPath(t *testing.T) {
	src := &mockSource{snaps: []model.MarketSnapshot{
		{MarketKey: "m1", SupplyAPY: 0.05, Risk: 0.01, Utilization: 0.5, MaxSupply: 2_000_000},
	}}
	store := &mockStore{}
	cache := &mockCache{}
	exec := &mockExecutor{}
	sink := &mockSink{}

	dec, err := newTestService(src, store, cache, exec, sink).Run(context.Background(), defaultParams())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := dec.Amount("m1"); got < 999_999 {
		t.Errorf("expected near-full allocation, got %v", got)
	}
	if len(store.snapBatches) != 1 || len(store.allocations) != 1 {
		t.Errorf("store writes: snapshots=%d allocations=%d, want 1/1", len(store.snapBatches), len(store.allocations))
	}
	if cache.sets != 1 {
		t.Errorf("cache updates: %d, want 1", cache.sets)
	}
	if exec.calls != 1 {
		t.Errorf("executor calls: %d, want 1", exec.calls)
	}
	if len(sink.lines) < 2 || sink.lines[0] != "Optimized Allocations:" {
		t.Errorf("report lines missing or wrong header: %v", sink.lines)
	}
	if !strings.Contains(sink.lines[1], "m1: $") {
		t.Errorf("allocation line malformed: %q", sink.lines[1])
	}
}

func TestRunFetchFailurePersistsNothing(t *testing.T) {
	src := &mockSource{err: fmt.Errorf("%w: connect refused", domain.ErrTransport)}
	store := &mockStore{}

	_, err := newTestService(src, store, nil, nil, &mockSink{}).Run(context.Background(), defaultParams())
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if len(store.snapBatches) != 0 || len(store.allocations) != 0 {
		t.Errorf("nothing may be persisted after a fetch failure: %+v", store)
	}
}

func TestRunInfeasibleKeepsSnapshots(t *testing.T) {
	src := &mockSource{snaps: []model.MarketSnapshot{{MarketKey: "m1", SupplyAPY: 0.05, MaxSupply: 100}}}
	store := &mockStore{}
	exec := &mockExecutor{}

	params := defaultParams()
	params.AvailableFunds = -1

	_, err := newTestService(src, store, nil, exec, &mockSink{}).Run(context.Background(), params)
	if !errors.Is(err, domain.ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
	if len(store.snapBatches) != 1 {
		t.Errorf("snapshots must persist despite infeasibility: %d batches", len(store.snapBatches))
	}
	if len(store.allocations) != 0 {
		t.Errorf("no allocation may be written on infeasibility: %d", len(store.allocations))
	}
	if exec.calls != 0 {
		t.Errorf("executor must not run on infeasibility")
	}
}

func TestRunSnapshotPersistFailureAborts(t *testing.T) {
	src := &mockSource{snaps: []model.MarketSnapshot{{MarketKey: "m1", SupplyAPY: 0.05, MaxSupply: 100}}}
	store := &mockStore{snapErr: fmt.Errorf("%w: disk full", domain.ErrPersistence)}

	_, err := newTestService(src, store, nil, nil, &mockSink{}).Run(context.Background(), defaultParams())
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(store.allocations) != 0 {
		t.Errorf("allocation written after snapshot persistence failed")
	}
}

func TestRunCacheFailureIsNonFatal(t *testing.T) {
	src := &mockSource{snaps: []model.MarketSnapshot{{MarketKey: "m1", SupplyAPY: 0.05, MaxSupply: 2_000_000}}}
	store := &mockStore{}
	cache := &mockCache{err: errors.New("redis down")}

	_, err := newTestService(src, store, cache, nil, &mockSink{}).Run(context.Background(), defaultParams())
	if err != nil {
		t.Fatalf("cache failure must not fail the run: %v", err)
	}
	if len(store.allocations) != 1 {
		t.Errorf("allocation missing after non-fatal cache failure")
	}
}

func TestRunSkipsExecutorOnZeroAllocation(t *testing.T) {
	// zero funds keeps the problem feasible but allocates nothing
	src := &mockSource{snaps: []model.MarketSnapshot{{MarketKey: "m1", SupplyAPY: 0.05, MaxSupply: 100}}}
	store := &mockStore{}
	exec := &mockExecutor{}

	params := defaultParams()
	params.AvailableFunds = 0

	dec, err := newTestService(src, store, nil, exec, &mockSink{}).Run(context.Background(), params)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if dec.Total() != 0 {
		t.Fatalf("expected zero total, got %v", dec.Total())
	}
	if exec.calls != 0 {
		t.Errorf("executor must be skipped for an all-zero decision")
	}
	if len(store.allocations) != 1 {
		t.Errorf("zero decision must still be persisted")
	}
}

func TestRunExecutorFailureSurfacesDecision(t *testing.T) {
	src := &mockSource{snaps: []model.MarketSnapshot{{MarketKey: "m1", SupplyAPY: 0.05, MaxSupply: 2_000_000}}}
	store := &mockStore{}
	boom := errors.New("gas estimation failed")
	exec := &mockExecutor{err: boom}

	dec, err := newTestService(src, store, nil, exec, &mockSink{}).Run(context.Background(), defaultParams())
	if !errors.Is(err, boom) {
		t.Fatalf("expected executor error, got %v", err)
	}
	if dec.Total() == 0 {
		t.Errorf("decision must be returned alongside the executor error")
	}
	if len(store.allocations) != 1 {
		t.Errorf("allocation must persist before the executor runs")
	}
}
