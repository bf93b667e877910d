package port

import (
	"context"

	"yieldopt/internal/domain/model"
)

// SnapshotCache keeps the most recent snapshot per market for quick lookup.
// The cache is advisory: it is not part of the Store contract and a failed
// cache write must not fail a run.
type SnapshotCache interface {
	SetLatest(ctx context.Context, snaps []model.MarketSnapshot) error
	Latest(ctx context.Context, marketKey string) (*model.MarketSnapshot, error)
	Close() error
}
