package solver

import (
	"errors"
	"math"
	"testing"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
)

const tol = 1e-6

func TestSimplexFundsBound(t *testing.T) {
	// one market: funds constraint binds before the supply cap
	p := port.LinearProgram{
		Objective: []float64{0.05},
		Rows: [][]float64{
			{1},
			{0.01},
			{0.5},
		},
		Limits: []float64{1_000_000, 200_000, 850_000},
		Upper:  []float64{2_000_000},
	}

	sol, err := NewSimplex().Solve(p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if math.Abs(sol.X[0]-1_000_000) > tol {
		t.Errorf("expected allocation 1000000, got %v", sol.X[0])
	}
	if math.Abs(sol.Objective-50_000) > tol {
		t.Errorf("expected objective 50000, got %v", sol.Objective)
	}
}

func TestSimplexRiskBudgetBinds(t *testing.T) {
	// market A yields more but carries risk 0.5; the risk budget of 100000
	// caps A at 200000 and the rest flows to B
	p := port.LinearProgram{
		Objective: []float64{0.08, 0.05},
		Rows: [][]float64{
			{1, 1},
			{0.5, 0},
			{0, 0},
		},
		Limits: []float64{1_000_000, 100_000, 850_000},
		Upper:  []float64{1_000_000, 1_000_000},
	}

	sol, err := NewSimplex().Solve(p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if math.Abs(sol.X[0]-200_000) > tol {
		t.Errorf("expected A=200000, got %v", sol.X[0])
	}
	if math.Abs(sol.X[1]-800_000) > tol {
		t.Errorf("expected B=800000, got %v", sol.X[1])
	}
	if math.Abs(sol.Objective-56_000) > tol {
		t.Errorf("expected objective 56000, got %v", sol.Objective)
	}
}

func TestSimplexInfeasible(t *testing.T) {
	p := port.LinearProgram{
		Objective: []float64{0.05},
		Rows:      [][]float64{{1}},
		Limits:    []float64{-1},
		Upper:     []float64{1_000_000},
	}

	_, err := NewSimplex().Solve(p)
	if !errors.Is(err, domain.ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
}

func TestSimplexNoVariables(t *testing.T) {
	sol, err := NewSimplex().Solve(port.LinearProgram{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if len(sol.X) != 0 || sol.Objective != 0 {
		t.Errorf("expected empty solution, got %+v", sol)
	}
}

func TestSimplexDeterministicObjective(t *testing.T) {
	p := port.LinearProgram{
		Objective: []float64{0.04, 0.04, 0.03},
		Rows: [][]float64{
			{1, 1, 1},
			{0.1, 0.2, 0},
			{0.5, 0.5, 0.9},
		},
		Limits: []float64{500_000, 60_000, 400_000},
		Upper:  []float64{300_000, 300_000, 300_000},
	}

	first, err := NewSimplex().Solve(p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := NewSimplex().Solve(p)
		if err != nil {
			t.Fatalf("Solve failed on repeat %d: %v", i, err)
		}
		if again.Objective != first.Objective {
			t.Fatalf("objective changed across runs: %v vs %v", first.Objective, again.Objective)
		}
	}
}
