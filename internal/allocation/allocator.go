// Package allocation solves the constrained mean-variance program:
//
//	maximize   μᵀw − λ·wᵀΣw
//	subject to Σwᵢ = 1, wmin ≤ wᵢ ≤ wmax
//
// Σ is positive-semidefinite, so the objective is concave and the feasible
// region is a box-constrained simplex: projected gradient ascent converges to
// the global optimum. The λ=0 case degenerates to a linear program and is
// solved directly.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/horizon/internal/domain"
)

// Config holds allocation parameters.
type Config struct {
	RiskAversion float64 // λ ≥ 0
	MinWeight    float64 // wmin
	MaxWeight    float64 // wmax
	MaxIter      int     // solver iteration budget
}

// Solution is a validated allocation: weights in the input symbol order,
// clipped to bounds and renormalized to sum exactly to one.
type Solution struct {
	Symbols    []string
	Weights    []float64
	Objective  float64
	Status     string
	Iterations int
}

// Allocator solves allocation programs. Stateless apart from config.
type Allocator struct {
	cfg Config
	log zerolog.Logger
}

// New creates an allocator.
func New(cfg Config, log zerolog.Logger) *Allocator {
	return &Allocator{
		cfg: cfg,
		log: log.With().Str("component", "allocator").Logger(),
	}
}

// convergenceTol is the sup-norm step change below which the solve is
// considered converged.
const convergenceTol = 1e-12

// Solve returns the optimal weights for the given expected returns and
// covariance. Fails with domain.ErrInfeasible before attempting a solve when
// the bounds cannot sum to one, and domain.ErrSolverDivergence when the
// iteration budget is exhausted.
func (a *Allocator) Solve(symbols []string, mu []float64, sigma *mat.SymDense) (*Solution, error) {
	n := len(symbols)
	if n == 0 || len(mu) != n || sigma.SymmetricDim() != n {
		return nil, fmt.Errorf("dimension mismatch: %d symbols, %d returns, %d×%d covariance: %w",
			n, len(mu), sigma.SymmetricDim(), sigma.SymmetricDim(), domain.ErrInfeasible)
	}

	lo, hi := a.cfg.MinWeight, a.cfg.MaxWeight
	if float64(n)*lo > 1 || float64(n)*hi < 1 {
		return nil, fmt.Errorf("n=%d, bounds [%.4f, %.4f] cannot sum to 1: %w",
			n, lo, hi, domain.ErrInfeasible)
	}

	var w []float64
	var iters int
	var status string

	if a.cfg.RiskAversion == 0 {
		w = a.solveLinear(mu, lo, hi)
		status = "optimal_linear"
	} else {
		var err error
		w, iters, err = a.solveQuadratic(mu, sigma, lo, hi)
		if err != nil {
			return nil, err
		}
		status = "optimal"
	}

	// Absorb solver tolerance drift: clip back into bounds, renormalize to
	// sum exactly to one.
	sum := 0.0
	for i := range w {
		w[i] = clamp(w[i], lo, hi)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}

	sol := &Solution{
		Symbols:    symbols,
		Weights:    w,
		Objective:  a.objective(mu, sigma, w),
		Status:     status,
		Iterations: iters,
	}

	a.log.Debug().
		Int("instruments", n).
		Int("iterations", iters).
		Float64("objective", sol.Objective).
		Str("status", status).
		Msg("Allocation solved")

	return sol, nil
}

// solveQuadratic runs projected gradient ascent with a fixed step derived
// from a Lipschitz bound on the gradient.
func (a *Allocator) solveQuadratic(mu []float64, sigma *mat.SymDense, lo, hi float64) ([]float64, int, error) {
	n := len(mu)
	lambda := a.cfg.RiskAversion

	// ‖∇f(x)−∇f(y)‖ ≤ 2λ‖Σ‖·‖x−y‖; the infinity norm bounds the spectral
	// norm for symmetric matrices.
	lipschitz := 2 * lambda * mat.Norm(sigma, math.Inf(1))
	step := 1.0
	if lipschitz > 0 {
		step = 1.0 / lipschitz
	}

	// Start from the uniform feasible point.
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	w = projectBoundedSimplex(w, lo, hi)

	grad := make([]float64, n)
	next := make([]float64, n)

	for iter := 1; iter <= a.cfg.MaxIter; iter++ {
		// ∇(μᵀw − λwᵀΣw) = μ − 2λΣw
		for i := 0; i < n; i++ {
			sw := 0.0
			for j := 0; j < n; j++ {
				sw += sigma.At(i, j) * w[j]
			}
			grad[i] = mu[i] - 2*lambda*sw
		}

		for i := 0; i < n; i++ {
			next[i] = w[i] + step*grad[i]
		}
		next = projectBoundedSimplex(next, lo, hi)

		delta := 0.0
		for i := 0; i < n; i++ {
			if d := math.Abs(next[i] - w[i]); d > delta {
				delta = d
			}
		}
		copy(w, next)

		if delta < convergenceTol {
			return w, iter, nil
		}
	}

	return nil, a.cfg.MaxIter, fmt.Errorf("no convergence in %d iterations: %w",
		a.cfg.MaxIter, domain.ErrSolverDivergence)
}

// solveLinear handles λ=0: maximize μᵀw subject to the bounds and the
// sum-to-one constraint. Start every weight at wmin and hand out the
// remaining mass in descending order of expected return. Ties are broken by
// input position, which makes the solution deterministic even when the LP
// has multiple optima.
func (a *Allocator) solveLinear(mu []float64, lo, hi float64) []float64 {
	n := len(mu)
	w := make([]float64, n)
	for i := range w {
		w[i] = lo
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return mu[order[a]] > mu[order[b]]
	})

	remaining := 1 - float64(n)*lo
	for _, idx := range order {
		if remaining <= 0 {
			break
		}
		add := hi - lo
		if add > remaining {
			add = remaining
		}
		w[idx] += add
		remaining -= add
	}
	return w
}

func (a *Allocator) objective(mu []float64, sigma *mat.SymDense, w []float64) float64 {
	n := len(w)
	ret := 0.0
	for i := 0; i < n; i++ {
		ret += mu[i] * w[i]
	}
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += w[i] * sigma.At(i, j) * w[j]
		}
	}
	return ret - a.cfg.RiskAversion*variance
}

func clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}
