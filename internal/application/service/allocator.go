package service

import (
	"fmt"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

// Allocator formulates the capital allocation problem and hands it to a
// pluggable LP solver.
type Allocator struct {
	solver port.Solver
}

func NewAllocator(solver port.Solver) *Allocator {
	return &Allocator{solver: solver}
}

// Optimize computes the allocation for one set of snapshots.
//
// Formulation, one variable x_i per snapshot with 0 <= x_i <= max_supply_i:
//
//	maximize  Σ supply_apy_i · x_i
//	s.t.      Σ x_i                 <= available_funds
//	          Σ risk_i · x_i        <= max_risk · available_funds
//	          Σ utilization_i · x_i <= max_utilization · available_funds
//
// Zero snapshots yield an empty decision without error. Invalid parameters
// (negative funds, caps outside [0,1]) and empty feasible regions return
// domain.ErrInfeasible; no partial or zero allocation is substituted.
func (a *Allocator) Optimize(snaps []model.MarketSnapshot, params model.ParamSet) (model.AllocationDecision, error) {
	if err := validateParams(params); err != nil {
		return model.AllocationDecision{}, err
	}
	if len(snaps) == 0 {
		return model.AllocationDecision{}, nil
	}

	n := len(snaps)
	p := port.LinearProgram{
		Objective: make([]float64, n),
		Upper:     make([]float64, n),
		Rows:      make([][]float64, 3),
		Limits: []float64{
			params.AvailableFunds,
			params.MaxRisk * params.AvailableFunds,
			params.MaxUtilization * params.AvailableFunds,
		},
	}
	funds := make([]float64, n)
	risks := make([]float64, n)
	utils := make([]float64, n)
	for i, s := range snaps {
		p.Objective[i] = s.SupplyAPY
		p.Upper[i] = s.MaxSupply
		funds[i] = 1
		risks[i] = s.Risk
		utils[i] = s.Utilization
	}
	p.Rows[0] = funds
	p.Rows[1] = risks
	p.Rows[2] = utils

	sol, err := a.solver.Solve(p)
	if err != nil {
		return model.AllocationDecision{}, err
	}

	lines := make([]model.AllocationLine, n)
	for i, s := range snaps {
		amt := sol.X[i]
		if amt < 0 {
			amt = 0
		}
		lines[i] = model.AllocationLine{MarketKey: s.MarketKey, Amount: amt}
	}
	return model.AllocationDecision{Lines: lines}, nil
}

func validateParams(params model.ParamSet) error {
	if params.AvailableFunds < 0 {
		return fmt.Errorf("%w: available_funds %.2f is negative", domain.ErrInfeasible, params.AvailableFunds)
	}
	if params.MaxRisk < 0 || params.MaxRisk > 1 {
		return fmt.Errorf("%w: max_risk %.4f outside [0,1]", domain.ErrInfeasible, params.MaxRisk)
	}
	if params.MaxUtilization < 0 || params.MaxUtilization > 1 {
		return fmt.Errorf("%w: max_utilization %.4f outside [0,1]", domain.ErrInfeasible, params.MaxUtilization)
	}
	return nil
}
