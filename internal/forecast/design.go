package forecast

import (
	"math"
	"time"

	"github.com/aristath/horizon/internal/domain"
)

// Fourier orders for the seasonal components. Weekly seasonality uses period
// 7 on calendar days, yearly uses the tropical year.
const (
	weeklyPeriod = 7.0
	weeklyOrder  = 3
	yearlyPeriod = 365.25
	yearlyOrder  = 10

	// Seasonal components are only fitted when the history spans enough of
	// the corresponding period to identify them.
	minWeeklySpanDays = 14
	minYearlySpanDays = 365
)

// designSpec describes the feature layout of a fitted model so the same
// layout can be reproduced for the one-step-ahead prediction row.
type designSpec struct {
	origin       time.Time // first observed date; t is measured from here
	spanDays     float64   // days between first and last observation
	changepoints []float64 // changepoint locations in normalized time
	weekly       bool
	yearly       bool
	holidayNames []string // holiday columns, in first-seen order

	// Penalty (inverse prior variance) per column, aligned with the design
	// matrix columns. Intercept and base slope are unpenalized.
	penalties []float64
}

// numColumns returns the width of the design matrix for this spec.
func (s *designSpec) numColumns() int {
	n := 2 + len(s.changepoints) // intercept, slope, changepoint bases
	if s.weekly {
		n += 2 * weeklyOrder
	}
	if s.yearly {
		n += 2 * yearlyOrder
	}
	n += len(s.holidayNames)
	return n
}

// normalizedTime maps a date to trend time: fractional days since the origin
// divided by the observed span, so the history covers [0, 1].
func (s *designSpec) normalizedTime(date time.Time) float64 {
	days := date.Sub(s.origin).Hours() / 24.0
	if s.spanDays <= 0 {
		return 0
	}
	return days / s.spanDays
}

// row fills a single design-matrix row for the given date. holidayName is
// empty for regular trading days.
func (s *designSpec) row(date time.Time, holidayName string) []float64 {
	t := s.normalizedTime(date)
	row := make([]float64, 0, s.numColumns())

	// Trend: intercept, base slope, piecewise slope adjustments.
	row = append(row, 1, t)
	for _, cp := range s.changepoints {
		if t > cp {
			row = append(row, t-cp)
		} else {
			row = append(row, 0)
		}
	}

	// Seasonality: Fourier terms on calendar days since origin.
	days := date.Sub(s.origin).Hours() / 24.0
	if s.weekly {
		row = appendFourier(row, days, weeklyPeriod, weeklyOrder)
	}
	if s.yearly {
		row = appendFourier(row, days, yearlyPeriod, yearlyOrder)
	}

	// Holiday indicators.
	for _, name := range s.holidayNames {
		if name == holidayName {
			row = append(row, 1)
		} else {
			row = append(row, 0)
		}
	}

	return row
}

func appendFourier(row []float64, days, period float64, order int) []float64 {
	for n := 1; n <= order; n++ {
		arg := 2 * math.Pi * float64(n) * days / period
		row = append(row, math.Sin(arg), math.Cos(arg))
	}
	return row
}

// buildSpec derives the feature layout from the observed series: which
// seasonal components are identifiable, where the trend changepoints sit,
// and which holidays occurred within the history.
func buildSpec(series *domain.PriceSeries, changepoints []float64, holidayNames []string, cfg Config) *designSpec {
	first := series.Points[0].Date
	last := series.Points[len(series.Points)-1].Date
	span := last.Sub(first).Hours() / 24.0

	spec := &designSpec{
		origin:       first,
		spanDays:     span,
		changepoints: changepoints,
		weekly:       span >= minWeeklySpanDays,
		yearly:       span >= minYearlySpanDays,
		holidayNames: holidayNames,
	}

	// Penalties mirror the column layout. Prior scales are standard
	// deviations; the ridge penalty is the inverse prior variance.
	penalties := make([]float64, 0, spec.numColumns())
	penalties = append(penalties, 0, 0) // intercept, slope: unpenalized
	cpPenalty := 1.0 / (cfg.ChangepointPriorScale * cfg.ChangepointPriorScale)
	for range spec.changepoints {
		penalties = append(penalties, cpPenalty)
	}
	seasPenalty := 1.0 / (cfg.SeasonalityPriorScale * cfg.SeasonalityPriorScale)
	if spec.weekly {
		for i := 0; i < 2*weeklyOrder; i++ {
			penalties = append(penalties, seasPenalty)
		}
	}
	if spec.yearly {
		for i := 0; i < 2*yearlyOrder; i++ {
			penalties = append(penalties, seasPenalty)
		}
	}
	holPenalty := 1.0 / (cfg.HolidayPriorScale * cfg.HolidayPriorScale)
	for range spec.holidayNames {
		penalties = append(penalties, holPenalty)
	}
	spec.penalties = penalties

	return spec
}
