package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/horizon/internal/calendar"
	"github.com/aristath/horizon/internal/domain"
)

func testConfig() Config {
	return Config{
		MinHistory:            60,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		HolidayPriorScale:     10,
		IntervalWidth:         0.95,
	}
}

func date(s string) time.Time {
	t, err := time.Parse(domain.DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

// syntheticSeries builds a deterministic series over real trading days:
// linear trend plus a small sinusoid, no randomness.
func syntheticSeries(cal *calendar.Calendar, symbol string, n int, slope float64) *domain.PriceSeries {
	days := cal.TradingDays(date("2024-01-01"), date("2025-12-31"))
	series := &domain.PriceSeries{Symbol: symbol}
	for i := 0; i < n && i < len(days); i++ {
		price := 100 + slope*float64(i) + 2*math.Sin(float64(i)/9)
		series.Points = append(series.Points, domain.PricePoint{Date: days[i], Close: price})
	}
	return series
}

func TestForecaster_Forecast(t *testing.T) {
	cal := calendar.New(calendar.DefaultHolidays())
	f := New(testConfig(), cal, zerolog.Nop())

	series := syntheticSeries(cal, "TCS.NS", 150, 0.5)
	result, err := f.Forecast(series)
	require.NoError(t, err)

	t.Run("interval contains prediction", func(t *testing.T) {
		assert.LessOrEqual(t, result.Lower, result.Predicted)
		assert.LessOrEqual(t, result.Predicted, result.Upper)
	})

	t.Run("target is the next trading day", func(t *testing.T) {
		last := series.Last().Date
		assert.Equal(t, cal.NextTradingDay(last), result.TargetDate)
		assert.Equal(t, last, result.AsOfDate)
	})

	t.Run("prediction tracks the trend", func(t *testing.T) {
		// 150 steps of +0.5/day from 100: the model should land near the
		// trend line, not near the series mean.
		assert.InDelta(t, series.Last().Close, result.Predicted, 10.0)
		assert.Greater(t, result.Predicted, 150.0)
	})

	t.Run("current price is the last close", func(t *testing.T) {
		assert.Equal(t, series.Last().Close, result.CurrentPrice)
	})
}

func TestForecaster_Deterministic(t *testing.T) {
	cal := calendar.New(calendar.DefaultHolidays())
	f := New(testConfig(), cal, zerolog.Nop())
	series := syntheticSeries(cal, "INFY.NS", 200, 0.3)

	first, err := f.Forecast(series)
	require.NoError(t, err)
	second, err := f.Forecast(series)
	require.NoError(t, err)

	assert.InDelta(t, first.Predicted, second.Predicted, 1e-9)
	assert.InDelta(t, first.Lower, second.Lower, 1e-9)
	assert.InDelta(t, first.Upper, second.Upper, 1e-9)
}

func TestForecaster_InsufficientHistory(t *testing.T) {
	cal := calendar.New(calendar.DefaultHolidays())
	f := New(testConfig(), cal, zerolog.Nop())

	series := syntheticSeries(cal, "SBIN.NS", 10, 0.5)
	_, err := f.Forecast(series)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientHistory))
	assert.Contains(t, err.Error(), "SBIN.NS")
}

func TestForecaster_RejectsUnsortedSeries(t *testing.T) {
	cal := calendar.New(calendar.DefaultHolidays())
	f := New(testConfig(), cal, zerolog.Nop())

	series := syntheticSeries(cal, "ITC.NS", 80, 0.5)
	// Swap two points so dates are no longer increasing.
	series.Points[10], series.Points[11] = series.Points[11], series.Points[10]

	_, err := f.Forecast(series)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNonConvergence))
}

func TestForecaster_FlatSeriesStaysFlat(t *testing.T) {
	cal := calendar.New(calendar.DefaultHolidays())
	f := New(testConfig(), cal, zerolog.Nop())

	series := syntheticSeries(cal, "LT.NS", 100, 0)
	result, err := f.Forecast(series)
	require.NoError(t, err)

	// Trendless input: the forecast should stay near the oscillation band.
	assert.InDelta(t, 100, result.Predicted, 5.0)
}

func TestSelectChangepoints(t *testing.T) {
	// Piecewise series: flat then rising; the bend is inside the first 80%.
	n := 100
	closes := make([]float64, n)
	times := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = float64(i) / float64(n-1)
		if i < 50 {
			closes[i] = 100
		} else {
			closes[i] = 100 + 2*float64(i-50)
		}
	}

	cps := selectChangepoints(closes, times)
	require.NotEmpty(t, cps)

	// At least one changepoint should sit near the bend at t=0.5.
	nearBend := false
	for _, cp := range cps {
		if math.Abs(cp-0.5) < 0.1 {
			nearBend = true
		}
	}
	assert.True(t, nearBend, "expected a changepoint near the trend bend, got %v", cps)

	t.Run("too short series yields none", func(t *testing.T) {
		assert.Nil(t, selectChangepoints([]float64{1, 2}, []float64{0, 1}))
	})
}
