package domain

import "errors"

// Per-instrument recoverable errors. The orchestrator drops the instrument
// from the run's universe and records the reason; the run continues.
var (
	// ErrInsufficientHistory indicates a price series is shorter than the
	// configured minimum number of trading observations.
	ErrInsufficientHistory = errors.New("insufficient price history")

	// ErrNonConvergence indicates the forecast model fit failed to converge.
	ErrNonConvergence = errors.New("forecast model did not converge")

	// ErrDataUnavailable indicates the series store has no observations for
	// an instrument in the requested range. If every instrument is
	// unavailable the minimum-universe check fails the run instead.
	ErrDataUnavailable = errors.New("price data unavailable")
)

// Run-fatal errors. These abort the current date's run; no allocation
// snapshot is written.
var (
	// ErrInsufficientUniverse indicates fewer than the minimum number of
	// instruments survived forecasting and return alignment.
	ErrInsufficientUniverse = errors.New("insufficient universe")

	// ErrInsufficientWindow indicates fewer aligned historical observations
	// than the configured minimum remain after the date inner-join.
	ErrInsufficientWindow = errors.New("insufficient aligned observations")

	// ErrInfeasible indicates the allocation constraints cannot be satisfied
	// for the given universe size.
	ErrInfeasible = errors.New("allocation constraints infeasible")

	// ErrSolverDivergence indicates the solver exhausted its iteration
	// budget without converging.
	ErrSolverDivergence = errors.New("solver did not converge")

	// ErrPersistence indicates a result sink write failed. Retryable by the
	// caller.
	ErrPersistence = errors.New("persistence failure")
)
