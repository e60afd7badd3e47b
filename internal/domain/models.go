// Package domain contains the core data model shared across the engine:
// price series, forecasts, allocation snapshots, and the collaborator
// interfaces (series store, result sink). The domain layer is pure — no
// infrastructure dependencies.
package domain

import (
	"fmt"
	"time"
)

// DateFormat is the canonical date encoding used across the engine and its
// persistence layer (ISO 8601, date only).
const DateFormat = "2006-01-02"

// PricePoint is a single (date, closing price) observation.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// PriceSeries is an ordered sequence of daily closing prices for one
// instrument. Dates are strictly increasing with no duplicates; the series
// store enforces ordering, Validate enforces both.
type PriceSeries struct {
	Symbol string
	Points []PricePoint
}

// Len returns the number of observations in the series.
func (s *PriceSeries) Len() int { return len(s.Points) }

// Last returns the most recent observation. Callers must check Len() > 0.
func (s *PriceSeries) Last() PricePoint { return s.Points[len(s.Points)-1] }

// Closes returns the closing prices in date order.
func (s *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// Validate checks the series invariants: strictly increasing dates, no
// duplicates, strictly positive prices.
func (s *PriceSeries) Validate() error {
	for i, p := range s.Points {
		if p.Close <= 0 {
			return fmt.Errorf("series %s: non-positive close %.4f at %s",
				s.Symbol, p.Close, p.Date.Format(DateFormat))
		}
		if i > 0 && !s.Points[i-1].Date.Before(p.Date) {
			return fmt.Errorf("series %s: dates not strictly increasing at %s",
				s.Symbol, p.Date.Format(DateFormat))
		}
	}
	return nil
}

// Holiday is a labeled non-trading date.
type Holiday struct {
	Name string
	Date time.Time
}

// ForecastResult is the one-step-ahead forecast for a single instrument.
// Immutable; created once per instrument per run.
type ForecastResult struct {
	Symbol       string
	AsOfDate     time.Time // last observed trading date
	TargetDate   time.Time // next trading date being forecast
	CurrentPrice float64
	Predicted    float64
	Lower        float64
	Upper        float64
}

// ExpectedReturn returns the forecast-implied single-period return,
// (predicted − current) / current.
func (f *ForecastResult) ExpectedReturn() float64 {
	return (f.Predicted - f.CurrentPrice) / f.CurrentPrice
}

// Validate enforces the interval invariant lower ≤ predicted ≤ upper and
// positive prices. A violation rejects the instrument's forecast.
func (f *ForecastResult) Validate() error {
	if f.CurrentPrice <= 0 || f.Predicted <= 0 {
		return fmt.Errorf("forecast %s: non-positive price", f.Symbol)
	}
	if f.Lower > f.Predicted || f.Predicted > f.Upper {
		return fmt.Errorf("forecast %s: interval [%.4f, %.4f] does not contain %.4f",
			f.Symbol, f.Lower, f.Upper, f.Predicted)
	}
	return nil
}

// DroppedInstrument records an instrument excluded from a run and why.
type DroppedInstrument struct {
	Symbol string `json:"symbol" msgpack:"symbol"`
	Reason string `json:"reason" msgpack:"reason"`
}

// AllocationResult is the output of one successful run: validated weights
// over the surviving universe for one as-of date. Immutable; a later run for
// the same date supersedes it in the sink rather than mutating it.
type AllocationResult struct {
	RunID          string
	AsOfDate       time.Time
	Weights        map[string]float64
	ObjectiveValue float64
	SolverStatus   string
	Forecasts      map[string]*ForecastResult
	Dropped        []DroppedInstrument
	CreatedAt      time.Time
}
