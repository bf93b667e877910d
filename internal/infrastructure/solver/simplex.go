package solver

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
)

// Simplex solves neutral-form programs with gonum's exact simplex method.
// The Dantzig pivot rule is deterministic for a fixed variable ordering, so
// identical inputs reproduce the same objective value.
type Simplex struct{}

func NewSimplex() *Simplex { return &Simplex{} }

// Solve converts the program to standard form (Ax = b, x >= 0) by adding one
// slack variable per constraint row and per upper bound, then runs the
// simplex method. An empty feasible region wraps domain.ErrInfeasible.
func (s *Simplex) Solve(p port.LinearProgram) (port.Solution, error) {
	n := len(p.Objective)
	if n == 0 {
		return port.Solution{}, nil
	}
	if len(p.Upper) != n {
		return port.Solution{}, fmt.Errorf("lp: %d upper bounds for %d variables", len(p.Upper), n)
	}
	if len(p.Rows) != len(p.Limits) {
		return port.Solution{}, fmt.Errorf("lp: %d rows for %d limits", len(p.Rows), len(p.Limits))
	}
	for i, row := range p.Rows {
		if len(row) != n {
			return port.Solution{}, fmt.Errorf("lp: row %d has %d coefficients for %d variables", i, len(row), n)
		}
	}

	m := len(p.Rows)
	cols := n + m + n // variables, row slacks, bound slacks
	rows := m + n

	// lp.Simplex minimizes; negate the objective.
	c := make([]float64, cols)
	for j, obj := range p.Objective {
		c[j] = -obj
	}

	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	for i, row := range p.Rows {
		for j, v := range row {
			a.Set(i, j, v)
		}
		a.Set(i, n+i, 1)
		b[i] = p.Limits[i]
	}
	for j := 0; j < n; j++ {
		a.Set(m+j, j, 1)
		a.Set(m+j, n+m+j, 1)
		b[m+j] = p.Upper[j]
	}

	optF, optX, err := lp.Simplex(c, a, b, 0, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return port.Solution{}, fmt.Errorf("%w: %v", domain.ErrInfeasible, err)
		}
		return port.Solution{}, fmt.Errorf("lp solve: %w", err)
	}

	x := make([]float64, n)
	copy(x, optX[:n])
	for i, v := range x {
		// numeric noise from the tableau
		if v < 0 {
			x[i] = 0
		}
	}
	return port.Solution{X: x, Objective: -optF}, nil
}

var _ port.Solver = (*Simplex)(nil)
