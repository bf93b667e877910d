package port

// LinearProgram is a maximization problem in neutral form:
//
//	maximize  Objective · x
//	s.t.      Rows[i] · x <= Limits[i]   for every constraint row
//	          0 <= x[j] <= Upper[j]      for every variable
//
// Building constraints in this form keeps the allocation logic independent of
// solver-specific quirks.
type LinearProgram struct {
	Objective []float64
	Rows      [][]float64
	Limits    []float64
	Upper     []float64
}

// Solution is a vertex optimum of a LinearProgram.
type Solution struct {
	X         []float64
	Objective float64
}

// Solver is a pluggable exact LP backend. An empty feasible region wraps
// domain.ErrInfeasible. For identical inputs the objective value must be
// reproducible; degenerate alternate optima with equal objective are
// acceptable.
type Solver interface {
	Solve(p LinearProgram) (Solution, error)
}
