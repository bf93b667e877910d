package service

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

// TrendAnalyzer computes descriptive statistics over a market's stored
// history. It reads only from the store.
type TrendAnalyzer struct {
	store port.Store
	now   func() time.Time
}

func NewTrendAnalyzer(store port.Store) *TrendAnalyzer {
	return &TrendAnalyzer{store: store, now: time.Now}
}

// Analyze summarizes the trailing windowDays of snapshots for a market.
// A window with zero snapshots returns domain.ErrNoHistory so callers never
// receive statistics computed over an empty set.
func (t *TrendAnalyzer) Analyze(ctx context.Context, marketKey string, windowDays int) (model.TrendSummary, error) {
	since := t.now().AddDate(0, 0, -windowDays)
	hist, err := t.store.QueryHistory(ctx, marketKey, since)
	if err != nil {
		return model.TrendSummary{}, err
	}
	if len(hist) == 0 {
		return model.TrendSummary{}, fmt.Errorf("%w: market %s over %d days", domain.ErrNoHistory, marketKey, windowDays)
	}

	apys := make([]float64, len(hist))
	utils := make([]float64, len(hist))
	for i, s := range hist {
		apys[i] = s.SupplyAPY
		utils[i] = s.Utilization
	}

	// History is most-recent-first.
	return model.TrendSummary{
		MarketKey:      marketKey,
		AvgSupplyAPY:   stat.Mean(apys, nil),
		MinSupplyAPY:   floats.Min(apys),
		MaxSupplyAPY:   floats.Max(apys),
		AvgUtilization: stat.Mean(utils, nil),
		DataPoints:     len(hist),
		Start:          hist[len(hist)-1].Timestamp,
		End:            hist[0].Timestamp,
	}, nil
}
