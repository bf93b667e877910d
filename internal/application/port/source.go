package port

import (
	"context"

	"yieldopt/internal/domain/model"
)

// MarketSource retrieves the current state of every known market. Fetch is a
// pure transform of the remote response: it never persists anything and never
// returns a truncated list.
type MarketSource interface {
	Fetch(ctx context.Context) ([]model.MarketSnapshot, error)
}
