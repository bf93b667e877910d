package model

import "time"

// MarketSnapshot is one observation of a lending market at a point in time.
// Numeric fields are always well-defined: the fetcher normalizes missing
// upstream values to 0 at ingestion.
type MarketSnapshot struct {
	MarketKey    string `json:"market_key"`
	TokenSymbol  string `json:"token_symbol"`
	TokenAddress string `json:"token_address"`

	// Execution metadata for the downstream vault call. Carried in memory
	// only, not persisted.
	LoanDecimals    int    `json:"loan_decimals,omitempty"`
	CollateralToken string `json:"collateral_token,omitempty"`
	OracleAddress   string `json:"oracle_address,omitempty"`
	IrmAddress      string `json:"irm_address,omitempty"`

	SupplyAPY   float64 `json:"supply_apy"`
	BorrowAPY   float64 `json:"borrow_apy"`
	Utilization float64 `json:"utilization"` // fraction borrowed, in [0,1]
	Lltv        float64 `json:"lltv"`        // liquidation LTV, in [0,1]
	MaxSupply   float64 `json:"max_supply"`  // USD capacity ceiling
	Risk        float64 `json:"risk"`        // per-unit risk weight (protocol fee)

	// Assigned by the store on insert, monotonically non-decreasing.
	Timestamp time.Time `json:"timestamp"`
}

// ParamSet holds the constraints for one optimization run.
type ParamSet struct {
	AvailableFunds float64 `json:"available_funds"` // USD, >= 0
	MaxRisk        float64 `json:"max_risk"`        // in [0,1]
	MaxUtilization float64 `json:"max_utilization"` // in [0,1]
}

// AllocationLine is the amount allocated to one market.
type AllocationLine struct {
	MarketKey string  `json:"market_key"`
	Amount    float64 `json:"allocated_amount"`
}

// AllocationDecision is the output of one optimization run. Lines keep the
// snapshot input order so persistence, reports, and the reallocate call stay
// deterministic for identical inputs.
type AllocationDecision struct {
	Lines []AllocationLine `json:"allocations"`
}

// Amount returns the allocation for a market key, 0 if absent.
func (d AllocationDecision) Amount(marketKey string) float64 {
	for _, l := range d.Lines {
		if l.MarketKey == marketKey {
			return l.Amount
		}
	}
	return 0
}

// Total returns the sum of all allocated amounts.
func (d AllocationDecision) Total() float64 {
	var sum float64
	for _, l := range d.Lines {
		sum += l.Amount
	}
	return sum
}

// TrendSummary holds descriptive statistics over a market's history.
type TrendSummary struct {
	MarketKey      string    `json:"market_key"`
	AvgSupplyAPY   float64   `json:"avg_supply_apy"`
	MinSupplyAPY   float64   `json:"min_supply_apy"`
	MaxSupplyAPY   float64   `json:"max_supply_apy"`
	AvgUtilization float64   `json:"avg_utilization"`
	DataPoints     int       `json:"data_points"`
	Start          time.Time `json:"start"` // oldest snapshot in the window
	End            time.Time `json:"end"`   // newest snapshot in the window
}
