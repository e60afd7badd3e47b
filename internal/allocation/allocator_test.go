package allocation

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/horizon/internal/domain"
)

func testConfig() Config {
	return Config{
		RiskAversion: 3.0,
		MinWeight:    0.05,
		MaxWeight:    0.60,
		MaxIter:      20000,
	}
}

func diagonal(variances ...float64) *mat.SymDense {
	n := len(variances)
	sigma := mat.NewSymDense(n, nil)
	for i, v := range variances {
		sigma.SetSym(i, i, v)
	}
	return sigma
}

func assertFeasible(t *testing.T, w []float64, lo, hi float64) {
	t.Helper()
	sum := 0.0
	for i, wi := range w {
		assert.GreaterOrEqual(t, wi, lo-1e-9, "weight %d below lower bound", i)
		assert.LessOrEqual(t, wi, hi+1e-9, "weight %d above upper bound", i)
		sum += wi
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestAllocator_Solve(t *testing.T) {
	a := New(testConfig(), zerolog.Nop())

	symbols := []string{"A", "B", "C"}
	mu := []float64{0.04, 0.01, -0.02}
	sigma := diagonal(0.02, 0.01, 0.03)

	sol, err := a.Solve(symbols, mu, sigma)
	require.NoError(t, err)

	t.Run("weights are feasible", func(t *testing.T) {
		require.Len(t, sol.Weights, 3)
		assertFeasible(t, sol.Weights, 0.05, 0.60)
	})

	t.Run("matches the KKT optimum", func(t *testing.T) {
		// Closed form for a diagonal Σ: wᵢ = clip((μᵢ − τ)/(2λσᵢᵢ), lo, hi)
		// with τ chosen so the weights sum to one. Here τ = −0.018, giving
		// C pinned at its lower bound.
		assert.InDelta(t, 29.0/60.0, sol.Weights[0], 1e-6)
		assert.InDelta(t, 28.0/60.0, sol.Weights[1], 1e-6)
		assert.InDelta(t, 0.05, sol.Weights[2], 1e-6)
	})

	t.Run("status and iteration accounting", func(t *testing.T) {
		assert.Equal(t, "optimal", sol.Status)
		assert.Greater(t, sol.Iterations, 0)
	})
}

func TestAllocator_Deterministic(t *testing.T) {
	a := New(testConfig(), zerolog.Nop())

	symbols := []string{"A", "B", "C", "D"}
	mu := []float64{0.03, 0.012, -0.005, 0.02}
	sigma := mat.NewSymDense(4, []float64{
		0.020, 0.004, 0.001, 0.006,
		0.004, 0.015, 0.002, 0.003,
		0.001, 0.002, 0.025, 0.001,
		0.006, 0.003, 0.001, 0.018,
	})

	first, err := a.Solve(symbols, mu, sigma)
	require.NoError(t, err)
	second, err := a.Solve(symbols, mu, sigma)
	require.NoError(t, err)

	for i := range first.Weights {
		assert.Equal(t, first.Weights[i], second.Weights[i])
	}
	assert.Equal(t, first.Objective, second.Objective)
	assertFeasible(t, first.Weights, 0.05, 0.60)
}

func TestAllocator_Infeasible(t *testing.T) {
	symbols := []string{"A", "B", "C"}
	mu := []float64{0.01, 0.02, 0.03}
	sigma := diagonal(0.01, 0.01, 0.01)

	t.Run("max weights cannot reach one", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxWeight = 0.30 // 3 × 0.30 < 1
		a := New(cfg, zerolog.Nop())

		_, err := a.Solve(symbols, mu, sigma)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInfeasible))
	})

	t.Run("min weights exceed one", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinWeight = 0.40 // 3 × 0.40 > 1
		a := New(cfg, zerolog.Nop())

		_, err := a.Solve(symbols, mu, sigma)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInfeasible))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		a := New(testConfig(), zerolog.Nop())
		_, err := a.Solve(symbols, []float64{0.01}, sigma)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInfeasible))
	})
}

func TestAllocator_ZeroRiskAversion(t *testing.T) {
	cfg := testConfig()
	cfg.RiskAversion = 0
	a := New(cfg, zerolog.Nop())

	symbols := []string{"A", "B", "C"}
	mu := []float64{0.04, 0.01, -0.02}
	sigma := diagonal(0.02, 0.01, 0.03)

	sol, err := a.Solve(symbols, mu, sigma)
	require.NoError(t, err)

	// All spare mass goes to the best instrument; the next one takes the
	// rest; the worst stays at the floor.
	assert.Equal(t, "optimal_linear", sol.Status)
	assert.InDelta(t, 0.60, sol.Weights[0], 1e-9)
	assert.InDelta(t, 0.35, sol.Weights[1], 1e-9)
	assert.InDelta(t, 0.05, sol.Weights[2], 1e-9)
	assert.InDelta(t, 0.04*0.60+0.01*0.35-0.02*0.05, sol.Objective, 1e-9)
}

func TestAllocator_ZeroRiskAversionTies(t *testing.T) {
	cfg := testConfig()
	cfg.RiskAversion = 0
	a := New(cfg, zerolog.Nop())

	symbols := []string{"A", "B", "C"}
	mu := []float64{0.02, 0.02, 0.02}
	sigma := diagonal(0.01, 0.01, 0.01)

	sol, err := a.Solve(symbols, mu, sigma)
	require.NoError(t, err)

	// Ties resolve by input position.
	assert.InDelta(t, 0.60, sol.Weights[0], 1e-9)
	assert.InDelta(t, 0.35, sol.Weights[1], 1e-9)
	assert.InDelta(t, 0.05, sol.Weights[2], 1e-9)
}

func TestAllocator_TwoAssetExactSplit(t *testing.T) {
	cfg := testConfig()
	cfg.MinWeight = 0.5
	cfg.MaxWeight = 0.5
	a := New(cfg, zerolog.Nop())

	sol, err := a.Solve([]string{"A", "B"}, []float64{0.03, 0.01}, diagonal(0.02, 0.02))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sol.Weights[0], 1e-9)
	assert.InDelta(t, 0.5, sol.Weights[1], 1e-9)
}

func TestProjectBoundedSimplex(t *testing.T) {
	t.Run("already feasible point is unchanged", func(t *testing.T) {
		w := projectBoundedSimplex([]float64{0.4, 0.35, 0.25}, 0.05, 0.60)
		assert.InDelta(t, 0.4, w[0], 1e-9)
		assert.InDelta(t, 0.35, w[1], 1e-9)
		assert.InDelta(t, 0.25, w[2], 1e-9)
	})

	t.Run("projection sums to one within bounds", func(t *testing.T) {
		cases := [][]float64{
			{1.5, -0.3, 0.1},
			{0.9, 0.9, 0.9},
			{0.0, 0.0, 0.0},
			{-2.0, 3.0, 0.5},
		}
		for _, v := range cases {
			w := projectBoundedSimplex(v, 0.05, 0.60)
			sum := 0.0
			for _, wi := range w {
				assert.GreaterOrEqual(t, wi, 0.05-1e-9)
				assert.LessOrEqual(t, wi, 0.60+1e-9)
				sum += wi
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		}
	})

	t.Run("preserves ordering", func(t *testing.T) {
		w := projectBoundedSimplex([]float64{0.8, 0.5, 0.2}, 0.05, 0.60)
		assert.True(t, w[0] >= w[1] && w[1] >= w[2])
	})
}

func TestObjective(t *testing.T) {
	a := New(testConfig(), zerolog.Nop())

	mu := []float64{0.04, 0.01}
	sigma := mat.NewSymDense(2, []float64{0.02, 0.005, 0.005, 0.01})
	w := []float64{0.6, 0.4}

	want := 0.04*0.6 + 0.01*0.4 -
		3.0*(0.6*0.6*0.02+2*0.6*0.4*0.005+0.4*0.4*0.01)
	assert.InDelta(t, want, a.objective(mu, sigma, w), 1e-12)
}

func TestAllocator_ObjectiveNotWorseThanUniform(t *testing.T) {
	a := New(testConfig(), zerolog.Nop())

	symbols := []string{"A", "B", "C", "D", "E"}
	mu := []float64{0.05, 0.02, 0.0, -0.01, 0.03}
	sigma := diagonal(0.02, 0.015, 0.03, 0.01, 0.025)

	sol, err := a.Solve(symbols, mu, sigma)
	require.NoError(t, err)

	uniform := make([]float64, len(symbols))
	for i := range uniform {
		uniform[i] = 1.0 / float64(len(symbols))
	}
	assert.GreaterOrEqual(t, sol.Objective, a.objective(mu, sigma, uniform)-1e-9)
	assertFeasible(t, sol.Weights, 0.05, 0.60)
	assert.False(t, math.IsNaN(sol.Objective))
}
