package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdDev(t *testing.T) {
	// Sample std dev of {2, 4, 4, 4, 5, 5, 7, 9} is sqrt(32/7).
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
	assert.InDelta(t, 0, StdDev(nil), 1e-12)
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015, 0.005, -0.01}
	want := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, want, AnnualizedVolatility(returns), 1e-12)
	assert.InDelta(t, 0, AnnualizedVolatility(nil), 1e-12)
}

func TestCalculateReturns(t *testing.T) {
	t.Run("day over day", func(t *testing.T) {
		returns := CalculateReturns([]float64{100, 110, 99})
		assert.Len(t, returns, 2)
		assert.InDelta(t, 0.10, returns[0], 1e-12)
		assert.InDelta(t, -0.10, returns[1], 1e-12)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Empty(t, CalculateReturns([]float64{100}))
	})

	t.Run("zero price guarded", func(t *testing.T) {
		returns := CalculateReturns([]float64{0, 100})
		assert.InDelta(t, 0, returns[0], 1e-12)
	})
}

func TestSmooth(t *testing.T) {
	t.Run("flat series is unchanged", func(t *testing.T) {
		values := []float64{5, 5, 5, 5, 5, 5}
		smoothed := Smooth(values, 3)
		assert.Len(t, smoothed, len(values))
		for _, v := range smoothed {
			assert.InDelta(t, 5.0, v, 1e-12)
		}
	})

	t.Run("moving average after warmup", func(t *testing.T) {
		values := []float64{1, 2, 3, 4, 5}
		smoothed := Smooth(values, 3)
		assert.Len(t, smoothed, 5)
		// Warmup entries carry the raw values.
		assert.InDelta(t, 1, smoothed[0], 1e-12)
		assert.InDelta(t, 2, smoothed[1], 1e-12)
		assert.InDelta(t, 2, smoothed[2], 1e-12)
		assert.InDelta(t, 3, smoothed[3], 1e-12)
		assert.InDelta(t, 4, smoothed[4], 1e-12)
	})

	t.Run("window larger than series", func(t *testing.T) {
		values := []float64{1, 2}
		smoothed := Smooth(values, 10)
		assert.Equal(t, values, smoothed)
	})

	t.Run("smoothing damps noise", func(t *testing.T) {
		values := []float64{10, 0, 10, 0, 10, 0, 10, 0, 10, 0}
		smoothed := Smooth(values, 4)
		for _, v := range smoothed[4:] {
			assert.InDelta(t, 5.0, v, 2.6)
		}
	})
}
