package run

import (
	"context"
	"time"

	"github.com/aristath/horizon/internal/domain"
	"github.com/aristath/horizon/internal/events"
)

// DateOutcome records one backfilled date's result.
type DateOutcome struct {
	Date  time.Time `json:"date"`
	RunID string    `json:"run_id,omitempty"`
	Error string    `json:"error,omitempty"`
}

// BackfillReport summarizes a backfill over a date range.
type BackfillReport struct {
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Outcomes  []DateOutcome `json:"outcomes"`
}

// Backfill replays the single-date pipeline over every trading day in
// [start, end], ascending. Each date is fully independent; a failed date is
// recorded and the remaining dates still run. Context cancellation stops the
// loop between dates.
func (o *Orchestrator) Backfill(ctx context.Context, start, end time.Time) (*BackfillReport, error) {
	days := o.cal.TradingDays(start, end)
	report := &BackfillReport{Start: start, End: end}

	o.log.Info().
		Str("start", start.Format(domain.DateFormat)).
		Str("end", end.Format(domain.DateFormat)).
		Int("trading_days", len(days)).
		Msg("Backfill started")

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := o.RunDate(ctx, day)
		outcome := DateOutcome{Date: day}
		if err != nil {
			outcome.Error = err.Error()
			report.Failed++
		} else {
			outcome.RunID = result.RunID
			report.Succeeded++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	o.log.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Backfill finished")
	o.bus.Publish(events.BackfillCompleted, &events.BackfillCompletedData{
		Start:     start.Format(domain.DateFormat),
		End:       end.Format(domain.DateFormat),
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
	})

	return report, nil
}
