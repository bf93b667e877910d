package port

import (
	"context"

	"yieldopt/internal/domain/model"
)

// Executor submits an allocation decision to the downstream vault contract.
// Snapshots supply the market parameters (loan/collateral token, oracle, IRM,
// LLTV) each non-zero line maps onto.
type Executor interface {
	Reallocate(ctx context.Context, snaps []model.MarketSnapshot, dec model.AllocationDecision) (txHash string, err error)
}
