package port

import (
	"context"
	"time"

	"yieldopt/internal/domain/model"
)

// Store is the append-only system of record for snapshots and allocation
// decisions. Every operation runs in its own scoped transaction, released on
// every exit path. Failures wrap domain.ErrPersistence; rows are never
// silently dropped.
type Store interface {
	// AppendSnapshots writes a batch as new rows. Timestamps are assigned
	// at insert, monotonically non-decreasing, and written back to the
	// batch elements.
	AppendSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error

	// AppendAllocation writes one row per market in the decision, zero
	// allocations included, alongside the ParamSet used.
	AppendAllocation(ctx context.Context, dec model.AllocationDecision, params model.ParamSet) error

	// QueryHistory returns all snapshots for the key with timestamp >=
	// since, ordered most-recent-first.
	QueryHistory(ctx context.Context, marketKey string, since time.Time) ([]model.MarketSnapshot, error)

	Close() error
}
