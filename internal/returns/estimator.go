// Package returns derives the optimizer's inputs from a run's forecasts and
// price histories: the expected-return vector and the rolling sample
// covariance matrix of historical returns.
package returns

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/horizon/internal/domain"
	"github.com/aristath/horizon/pkg/formulas"
)

// Config holds return-estimation parameters.
type Config struct {
	CovWindow    int // Trailing window of historical returns (observations)
	MinWindowObs int // Minimum aligned return observations
	MinUniverse  int // Minimum instruments after alignment
}

// Estimate is the optimizer input for one run: instruments in a fixed order,
// their expected returns, and the covariance of their aligned historical
// returns. Constructed fresh per run, never mutated.
type Estimate struct {
	Symbols      []string
	Mu           []float64
	Sigma        *mat.SymDense
	Observations int // aligned return observations behind Sigma
}

// Estimator computes Estimates. Stateless apart from config and logging.
type Estimator struct {
	cfg Config
	log zerolog.Logger
}

// New creates an estimator.
func New(cfg Config, log zerolog.Logger) *Estimator {
	return &Estimator{
		cfg: cfg,
		log: log.With().Str("component", "returns").Logger(),
	}
}

// Estimate builds the expected-return vector and covariance matrix for the
// instruments that have both a valid forecast and sufficient history. The
// universe order fixes the output order, which keeps the whole run
// deterministic.
//
// Fails with domain.ErrInsufficientUniverse or domain.ErrInsufficientWindow;
// both are fatal to the run.
func (e *Estimator) Estimate(
	universe []string,
	forecasts map[string]*domain.ForecastResult,
	histories map[string]*domain.PriceSeries,
) (*Estimate, error) {
	// Restrict to instruments with both inputs, preserving universe order.
	var symbols []string
	for _, sym := range universe {
		if forecasts[sym] != nil && histories[sym] != nil {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) < e.cfg.MinUniverse {
		return nil, fmt.Errorf("%d instruments with forecasts, need %d: %w",
			len(symbols), e.cfg.MinUniverse, domain.ErrInsufficientUniverse)
	}

	// Inner join on dates common to every series.
	dates := commonDates(symbols, histories)

	// Day-over-day returns need one more price than return observations.
	if maxDates := e.cfg.CovWindow + 1; len(dates) > maxDates {
		dates = dates[len(dates)-maxDates:]
	}
	obs := len(dates) - 1
	if obs < e.cfg.MinWindowObs {
		return nil, fmt.Errorf("%d aligned observations, need %d: %w",
			obs, e.cfg.MinWindowObs, domain.ErrInsufficientWindow)
	}

	// Aligned return matrix: rows = observations, cols = instruments.
	data := mat.NewDense(obs, len(symbols), nil)
	for j, sym := range symbols {
		rets := formulas.CalculateReturns(closesOn(histories[sym], dates))
		for i, r := range rets {
			data.Set(i, j, r)
		}
		e.log.Debug().
			Str("symbol", sym).
			Float64("annualized_vol", formulas.AnnualizedVolatility(rets)).
			Msg("Returns aligned")
	}

	sigma := mat.NewSymDense(len(symbols), nil)
	stat.CovarianceMatrix(sigma, data, nil)
	symmetrize(sigma)

	mu := make([]float64, len(symbols))
	for i, sym := range symbols {
		mu[i] = forecasts[sym].ExpectedReturn()
	}

	e.log.Debug().
		Int("instruments", len(symbols)).
		Int("observations", obs).
		Msg("Covariance estimated")

	return &Estimate{
		Symbols:      symbols,
		Mu:           mu,
		Sigma:        sigma,
		Observations: obs,
	}, nil
}

// commonDates returns the dates present in every series, ascending.
func commonDates(symbols []string, histories map[string]*domain.PriceSeries) []string {
	counts := make(map[string]int)
	for _, sym := range symbols {
		for _, p := range histories[sym].Points {
			counts[p.Date.Format(domain.DateFormat)]++
		}
	}

	var dates []string
	for date, count := range counts {
		if count == len(symbols) {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}

// closesOn returns the series' closing prices on the given dates, in order.
func closesOn(series *domain.PriceSeries, dates []string) []float64 {
	byDate := make(map[string]float64, series.Len())
	for _, p := range series.Points {
		byDate[p.Date.Format(domain.DateFormat)] = p.Close
	}
	closes := make([]float64, len(dates))
	for i, d := range dates {
		closes[i] = byDate[d]
	}
	return closes
}

// symmetrize averages the matrix with its transpose to wash out any
// floating-point asymmetry from the covariance computation.
func symmetrize(m *mat.SymDense) {
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (m.At(i, j) + m.At(j, i)) / 2
			m.SetSym(i, j, avg)
		}
	}
}
