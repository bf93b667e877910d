package domain

import "errors"

// Error taxonomy for the allocation pipeline. Every failure a caller can
// receive wraps exactly one of these; branch with errors.Is.
var (
	// ErrTransport: the market API could not be reached or answered non-2xx.
	ErrTransport = errors.New("market api transport failure")

	// ErrSchema: the market API answered, but the response is missing
	// required structural fields (e.g. the markets list).
	ErrSchema = errors.New("market api response malformed")

	// ErrInfeasible: no allocation satisfies the given constraints.
	ErrInfeasible = errors.New("no feasible allocation")

	// ErrNoHistory: a trend analysis window contained zero snapshots.
	ErrNoHistory = errors.New("no snapshots in window")

	// ErrPersistence: a storage read or write failed.
	ErrPersistence = errors.New("storage failure")
)
