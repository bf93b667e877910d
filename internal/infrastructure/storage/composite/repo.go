package composite

import (
	"context"
	"fmt"
	"time"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

// Repo fans writes out to every configured store and keeps the first error.
// History reads are served by the primary (first) store so they never
// silently lose rows.
type Repo struct {
	stores []port.Store
}

func New(stores ...port.Store) *Repo {
	// nil stores are allowed; filter in constructor for safety
	out := make([]port.Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Repo{stores: out}
}

func (r *Repo) AppendSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error {
	var firstErr error
	for _, s := range r.stores {
		if err := s.AppendSnapshots(ctx, snaps); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) AppendAllocation(ctx context.Context, dec model.AllocationDecision, params model.ParamSet) error {
	var firstErr error
	for _, s := range r.stores {
		if err := s.AppendAllocation(ctx, dec, params); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) QueryHistory(ctx context.Context, marketKey string, since time.Time) ([]model.MarketSnapshot, error) {
	if len(r.stores) == 0 {
		return nil, fmt.Errorf("%w: no store configured", domain.ErrPersistence)
	}
	return r.stores[0].QueryHistory(ctx, marketKey, since)
}

func (r *Repo) Close() error {
	var firstErr error
	for _, s := range r.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Store = (*Repo)(nil)
