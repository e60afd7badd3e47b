// Package run sequences the daily pipeline: fetch histories, forecast each
// instrument, estimate returns and covariance, solve the allocation, persist
// the snapshot. Each run is self-contained and idempotent: re-running a date
// recomputes everything from source data and overwrites the prior snapshot.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/horizon/internal/allocation"
	"github.com/aristath/horizon/internal/calendar"
	"github.com/aristath/horizon/internal/domain"
	"github.com/aristath/horizon/internal/events"
	"github.com/aristath/horizon/internal/forecast"
	"github.com/aristath/horizon/internal/returns"
)

// State tracks a run's progress through the pipeline.
type State string

const (
	StateFetched     State = "FETCHED"
	StateForecasting State = "FORECASTING"
	StateAggregating State = "AGGREGATING"
	StateOptimizing  State = "OPTIMIZING"
	StatePersisted   State = "PERSISTED"
	StateFailed      State = "FAILED"
)

// HistoryLookbackDays is how far back the orchestrator requests price history
// for each run, measured in calendar days from the as-of date. Two years
// covers the covariance window plus enough history for seasonal fitting.
const HistoryLookbackDays = 730

// Config holds orchestration parameters.
type Config struct {
	Universe    []string
	MinUniverse int
}

// Orchestrator runs the single-date pipeline and the backfill loop.
type Orchestrator struct {
	cfg        Config
	store      domain.SeriesStore
	sink       domain.ResultSink
	forecaster *forecast.Forecaster
	estimator  *returns.Estimator
	allocator  *allocation.Allocator
	cal        *calendar.Calendar
	bus        *events.Bus
	log        zerolog.Logger
}

// New creates an orchestrator.
func New(
	cfg Config,
	store domain.SeriesStore,
	sink domain.ResultSink,
	forecaster *forecast.Forecaster,
	estimator *returns.Estimator,
	allocator *allocation.Allocator,
	cal *calendar.Calendar,
	bus *events.Bus,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		sink:       sink,
		forecaster: forecaster,
		estimator:  estimator,
		allocator:  allocator,
		cal:        cal,
		bus:        bus,
		log:        log.With().Str("component", "orchestrator").Logger(),
	}
}

// instrumentOutcome collects one instrument's fan-out result.
type instrumentOutcome struct {
	symbol   string
	history  *domain.PriceSeries
	forecast *domain.ForecastResult
	err      error
}

// RunDate executes the full pipeline for one as-of date and persists the
// resulting allocation snapshot. Per-instrument failures drop the instrument
// and continue; run-fatal errors abort with no snapshot written.
func (o *Orchestrator) RunDate(ctx context.Context, asOf time.Time) (*domain.AllocationResult, error) {
	runID := uuid.New().String()
	state := StateFetched
	log := o.log.With().Str("run_id", runID).Str("as_of", asOf.Format(domain.DateFormat)).Logger()

	log.Info().Int("universe", len(o.cfg.Universe)).Msg("Run started")
	o.bus.Publish(events.RunStarted, &events.RunStartedData{
		RunID:    runID,
		AsOfDate: asOf.Format(domain.DateFormat),
		Universe: len(o.cfg.Universe),
	})

	fail := func(err error) (*domain.AllocationResult, error) {
		log.Error().Err(err).Str("state", string(state)).Msg("Run failed")
		o.bus.Publish(events.RunFailed, &events.RunFailedData{
			RunID:    runID,
			AsOfDate: asOf.Format(domain.DateFormat),
			Error:    err.Error(),
		})
		return nil, fmt.Errorf("run %s (%s): %w", runID, state, err)
	}

	// Fetch + forecast, fanned out per instrument. Each goroutine reads
	// only its own series and the shared immutable calendar, and writes
	// only its own slot, so outcomes keep universe order. That keeps drop
	// diagnostics byte-identical across reruns of the same date.
	state = StateForecasting
	start := asOf.AddDate(0, 0, -HistoryLookbackDays)

	outcomes := make([]instrumentOutcome, len(o.cfg.Universe))
	var wg sync.WaitGroup
	for i, symbol := range o.cfg.Universe {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			outcomes[i] = o.forecastInstrument(ctx, symbol, start, asOf)
		}(i, symbol)
	}
	wg.Wait()

	forecasts := make(map[string]*domain.ForecastResult)
	histories := make(map[string]*domain.PriceSeries)
	var dropped []domain.DroppedInstrument
	for _, out := range outcomes {
		if out.err != nil {
			if !isRecoverable(out.err) {
				return fail(out.err)
			}
			log.Warn().Str("symbol", out.symbol).Err(out.err).Msg("Instrument dropped")
			dropped = append(dropped, domain.DroppedInstrument{
				Symbol: out.symbol,
				Reason: out.err.Error(),
			})
			o.bus.Publish(events.InstrumentDropped, &events.InstrumentDroppedData{
				RunID:  runID,
				Symbol: out.symbol,
				Reason: out.err.Error(),
			})
			continue
		}
		forecasts[out.symbol] = out.forecast
		histories[out.symbol] = out.history
	}

	if len(forecasts) < o.cfg.MinUniverse {
		return fail(fmt.Errorf("%d instruments survived forecasting, need %d: %w",
			len(forecasts), o.cfg.MinUniverse, domain.ErrInsufficientUniverse))
	}

	// Aggregate into optimizer inputs.
	state = StateAggregating
	estimate, err := o.estimator.Estimate(o.cfg.Universe, forecasts, histories)
	if err != nil {
		return fail(err)
	}

	// Solve.
	state = StateOptimizing
	solution, err := o.allocator.Solve(estimate.Symbols, estimate.Mu, estimate.Sigma)
	if err != nil {
		return fail(err)
	}

	weights := make(map[string]float64, len(solution.Symbols))
	for i, sym := range solution.Symbols {
		weights[sym] = solution.Weights[i]
	}

	result := &domain.AllocationResult{
		RunID:          runID,
		AsOfDate:       asOf,
		Weights:        weights,
		ObjectiveValue: solution.Objective,
		SolverStatus:   solution.Status,
		Forecasts:      forecasts,
		Dropped:        dropped,
		CreatedAt:      time.Now().UTC(),
	}

	// Persist. Upsert by (date, instrument) makes re-runs overwrite.
	if err := o.sink.Upsert(ctx, result); err != nil {
		return fail(err)
	}
	state = StatePersisted

	log.Info().
		Int("instruments", len(weights)).
		Int("dropped", len(dropped)).
		Float64("objective", solution.Objective).
		Msg("Run completed")
	o.bus.Publish(events.RunCompleted, &events.RunCompletedData{
		RunID:       runID,
		AsOfDate:    asOf.Format(domain.DateFormat),
		Instruments: len(weights),
		Objective:   solution.Objective,
	})

	return result, nil
}

// forecastInstrument fetches one instrument's history and forecasts its next
// close. Runs concurrently with its siblings.
func (o *Orchestrator) forecastInstrument(ctx context.Context, symbol string, start, end time.Time) instrumentOutcome {
	series, err := o.store.GetHistory(ctx, symbol, start, end)
	if err != nil {
		return instrumentOutcome{symbol: symbol, err: err}
	}

	fc, err := o.forecaster.Forecast(series)
	if err != nil {
		return instrumentOutcome{symbol: symbol, err: err}
	}

	return instrumentOutcome{symbol: symbol, history: series, forecast: fc}
}

// isRecoverable reports whether an instrument-level error drops just that
// instrument rather than failing the run. Data unavailability is recoverable
// per instrument; if every instrument is unavailable the minimum-universe
// check fails the run anyway.
func isRecoverable(err error) bool {
	return errors.Is(err, domain.ErrInsufficientHistory) ||
		errors.Is(err, domain.ErrNonConvergence) ||
		errors.Is(err, domain.ErrDataUnavailable)
}
