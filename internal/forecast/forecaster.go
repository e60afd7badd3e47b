// Package forecast implements the per-instrument price forecaster: an
// additive decomposition into piecewise-linear trend, weekly and yearly
// Fourier seasonality, and post-holiday effects, fitted by ridge regression
// and extrapolated one trading day ahead. The fit is a closed-form MAP
// estimate, so repeated forecasts over identical inputs are identical.
package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/horizon/internal/calendar"
	"github.com/aristath/horizon/internal/domain"
)

// Config holds the forecaster's tuning parameters. Prior scales follow the
// usual convention: larger means a weaker prior, so the component can absorb
// more of the signal.
type Config struct {
	MinHistory            int
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	HolidayPriorScale     float64
	IntervalWidth         float64 // e.g. 0.95 for a 95% interval
}

// Forecaster produces one-step-ahead forecasts. Safe for concurrent use:
// every call reads only its own series plus the immutable calendar.
type Forecaster struct {
	cfg Config
	cal *calendar.Calendar
	log zerolog.Logger
}

// New creates a forecaster with the given configuration and trading calendar.
func New(cfg Config, cal *calendar.Calendar, log zerolog.Logger) *Forecaster {
	return &Forecaster{
		cfg: cfg,
		cal: cal,
		log: log.With().Str("component", "forecaster").Logger(),
	}
}

// Forecast fits the decomposable model to the series and predicts the close
// for the next trading day after the series' last date.
//
// Returns domain.ErrInsufficientHistory when the series is shorter than the
// configured minimum, and domain.ErrNonConvergence when the fit fails
// numerically. Both are per-instrument and recoverable at the run level.
func (f *Forecaster) Forecast(series *domain.PriceSeries) (*domain.ForecastResult, error) {
	if series.Len() < f.cfg.MinHistory {
		return nil, fmt.Errorf("%s: %d observations, need %d: %w",
			series.Symbol, series.Len(), f.cfg.MinHistory, domain.ErrInsufficientHistory)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", series.Symbol, err, domain.ErrNonConvergence)
	}

	closes := series.Closes()
	n := len(closes)

	// Normalized observation times for changepoint placement.
	first := series.Points[0].Date
	last := series.Last().Date
	span := last.Sub(first).Hours() / 24.0
	times := make([]float64, n)
	for i, p := range series.Points {
		if span > 0 {
			times[i] = p.Date.Sub(first).Hours() / 24.0 / span
		}
	}

	changepoints := selectChangepoints(closes, times)
	holidayLabels, holidayNames := f.labelHolidays(series)
	spec := buildSpec(series, changepoints, holidayNames, f.cfg)

	// Assemble the design matrix.
	cols := spec.numColumns()
	X := mat.NewDense(n, cols, nil)
	for i, p := range series.Points {
		X.SetRow(i, spec.row(p.Date, holidayLabels[i]))
	}
	y := mat.NewVecDense(n, closes)

	beta, fitErr := ridgeSolve(X, y, spec.penalties)
	if fitErr != nil {
		return nil, fmt.Errorf("%s: %v: %w", series.Symbol, fitErr, domain.ErrNonConvergence)
	}

	// Residual scale for the uncertainty interval.
	var fitted mat.VecDense
	fitted.MulVec(X, beta)
	ssr := 0.0
	for i := 0; i < n; i++ {
		r := closes[i] - fitted.AtVec(i)
		ssr += r * r
	}
	dof := n - cols
	if dof < 1 {
		dof = 1
	}
	sigma := math.Sqrt(ssr / float64(dof))

	// One-step-ahead prediction row.
	target := f.cal.NextTradingDay(last)
	targetLabel := f.holidayBetween(last, target)
	xNext := spec.row(target, targetLabel)
	predicted := mat.Dot(mat.NewVecDense(cols, xNext), beta)

	if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
		return nil, fmt.Errorf("%s: non-finite prediction: %w", series.Symbol, domain.ErrNonConvergence)
	}

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + f.cfg.IntervalWidth/2)
	halfWidth := z * sigma

	result := &domain.ForecastResult{
		Symbol:       series.Symbol,
		AsOfDate:     last,
		TargetDate:   target,
		CurrentPrice: series.Last().Close,
		Predicted:    predicted,
		Lower:        predicted - halfWidth,
		Upper:        predicted + halfWidth,
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrNonConvergence)
	}

	f.log.Debug().
		Str("symbol", series.Symbol).
		Time("target", target).
		Float64("current", result.CurrentPrice).
		Float64("predicted", predicted).
		Float64("sigma", sigma).
		Int("changepoints", len(changepoints)).
		Msg("Forecast produced")

	return result, nil
}

// labelHolidays assigns each observation the name of the holiday (if any)
// that fell between it and the previous observation. The market being closed
// on the holiday itself, its effect shows up in the next session's price.
func (f *Forecaster) labelHolidays(series *domain.PriceSeries) ([]string, []string) {
	labels := make([]string, series.Len())
	var names []string
	seen := make(map[string]bool)

	for i := 1; i < series.Len(); i++ {
		name := f.holidayBetween(series.Points[i-1].Date, series.Points[i].Date)
		labels[i] = name
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return labels, names
}

// holidayBetween returns the name of the first holiday strictly between two
// dates, or "" if the gap contains none.
func (f *Forecaster) holidayBetween(prev, next time.Time) string {
	for d := prev.AddDate(0, 0, 1); d.Before(next); d = d.AddDate(0, 0, 1) {
		if name, ok := f.cal.IsHoliday(d); ok {
			return name
		}
	}
	return ""
}

// ridgeSolve computes the MAP estimate (XᵀX + D)⁻¹ Xᵀy where D is the
// diagonal penalty matrix. The normal equations are solved via Cholesky; a
// non-positive-definite system means the fit is not identifiable.
func ridgeSolve(X *mat.Dense, y *mat.VecDense, penalties []float64) (*mat.VecDense, error) {
	_, cols := X.Dims()

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	sym := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			v := (xtx.At(i, j) + xtx.At(j, i)) / 2
			if i == j {
				v += penalties[i]
			}
			sym.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("normal equations not positive definite")
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	beta := mat.NewVecDense(cols, nil)
	if err := chol.SolveVecTo(beta, &xty); err != nil {
		return nil, fmt.Errorf("cholesky solve failed: %w", err)
	}

	for i := 0; i < cols; i++ {
		if v := beta.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite coefficient at column %d", i)
		}
	}
	return beta, nil
}
