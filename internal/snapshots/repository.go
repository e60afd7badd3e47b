// Package snapshots persists allocation results. One row per (as-of date,
// symbol) in allocation_snapshots plus one row per date in runs; both are
// upserts, so replaying a date overwrites instead of appending.
package snapshots

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/horizon/internal/database"
	"github.com/aristath/horizon/internal/domain"
)

// Repository implements domain.ResultSink over SQLite.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a snapshot repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "snapshots").Logger(),
	}
}

// InitSchema creates the tables if they do not exist.
func (r *Repository) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT NOT NULL,
		as_of_date      TEXT NOT NULL PRIMARY KEY,
		status          TEXT NOT NULL,
		objective_value REAL NOT NULL,
		solver_status   TEXT NOT NULL,
		diagnostics     BLOB,
		created_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS allocation_snapshots (
		as_of_date      TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		weight          REAL NOT NULL,
		expected_return REAL NOT NULL,
		current_price   REAL NOT NULL,
		predicted_price REAL NOT NULL,
		lower_bound     REAL NOT NULL,
		upper_bound     REAL NOT NULL,
		run_id          TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		PRIMARY KEY (as_of_date, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON allocation_snapshots(run_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return nil
}

// runDiagnostics is the msgpack blob stored per run.
type runDiagnostics struct {
	Dropped []domain.DroppedInstrument `msgpack:"dropped"`
}

// Upsert writes an allocation result. Re-running a date replaces its rows:
// the run row by date, each snapshot row by (date, symbol), and snapshot
// rows for instruments no longer in the universe are removed. Failures wrap
// domain.ErrPersistence and the write is atomic, so the caller may retry.
func (r *Repository) Upsert(ctx context.Context, result *domain.AllocationResult) error {
	diagnostics, err := msgpack.Marshal(&runDiagnostics{Dropped: result.Dropped})
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %v: %w", err, domain.ErrPersistence)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v: %w", err, domain.ErrPersistence)
	}
	defer tx.Rollback()

	asOf := result.AsOfDate.Format(domain.DateFormat)
	createdAt := result.CreatedAt.Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, as_of_date, status, objective_value, solver_status, diagnostics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(as_of_date) DO UPDATE SET
			run_id = excluded.run_id,
			status = excluded.status,
			objective_value = excluded.objective_value,
			solver_status = excluded.solver_status,
			diagnostics = excluded.diagnostics,
			created_at = excluded.created_at
	`, result.RunID, asOf, "PERSISTED", result.ObjectiveValue, result.SolverStatus, diagnostics, createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert run row: %v: %w", err, domain.ErrPersistence)
	}

	// Drop rows from a previous run of this date whose instruments are gone.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM allocation_snapshots WHERE as_of_date = ?`, asOf); err != nil {
		return fmt.Errorf("failed to clear prior snapshot rows: %v: %w", err, domain.ErrPersistence)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO allocation_snapshots
			(as_of_date, symbol, weight, expected_return, current_price,
			 predicted_price, lower_bound, upper_bound, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %v: %w", err, domain.ErrPersistence)
	}
	defer stmt.Close()

	for symbol, weight := range result.Weights {
		fc := result.Forecasts[symbol]
		if fc == nil {
			return fmt.Errorf("weight without forecast for %s: %w", symbol, domain.ErrPersistence)
		}
		_, err = stmt.ExecContext(ctx, asOf, symbol, weight, fc.ExpectedReturn(),
			fc.CurrentPrice, fc.Predicted, fc.Lower, fc.Upper, result.RunID, createdAt)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot for %s: %v: %w", symbol, err, domain.ErrPersistence)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %v: %w", err, domain.ErrPersistence)
	}

	r.log.Debug().
		Str("as_of", asOf).
		Str("run_id", result.RunID).
		Int("instruments", len(result.Weights)).
		Msg("Snapshot persisted")

	return nil
}

// ReadRange returns the allocation results with as-of dates in [start, end],
// ascending by date. Used by the reporting API; not part of the write path.
func (r *Repository) ReadRange(ctx context.Context, start, end time.Time) ([]*domain.AllocationResult, error) {
	runRows, err := r.db.Conn().QueryContext(ctx, `
		SELECT run_id, as_of_date, objective_value, solver_status, diagnostics, created_at
		FROM runs
		WHERE as_of_date >= ? AND as_of_date <= ?
		ORDER BY as_of_date ASC
	`, start.Format(domain.DateFormat), end.Format(domain.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer runRows.Close()

	var results []*domain.AllocationResult
	for runRows.Next() {
		result, err := scanRun(runRows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := runRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	for _, result := range results {
		if err := r.loadSnapshotRows(ctx, result); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Latest returns the most recent allocation result, or nil when none exists.
func (r *Repository) Latest(ctx context.Context) (*domain.AllocationResult, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT run_id, as_of_date, objective_value, solver_status, diagnostics, created_at
		FROM runs
		ORDER BY as_of_date DESC
		LIMIT 1
	`)

	result, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadSnapshotRows(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.AllocationResult, error) {
	var (
		runID, asOfStr, solverStatus, createdStr string
		objective                                float64
		diagnostics                              []byte
	)
	if err := row.Scan(&runID, &asOfStr, &objective, &solverStatus, &diagnostics, &createdStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}

	asOf, err := time.Parse(domain.DateFormat, asOfStr)
	if err != nil {
		return nil, fmt.Errorf("invalid as_of_date %q: %w", asOfStr, err)
	}
	createdAt, err := time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdStr, err)
	}

	result := &domain.AllocationResult{
		RunID:          runID,
		AsOfDate:       asOf,
		Weights:        make(map[string]float64),
		ObjectiveValue: objective,
		SolverStatus:   solverStatus,
		Forecasts:      make(map[string]*domain.ForecastResult),
		CreatedAt:      createdAt,
	}

	if len(diagnostics) > 0 {
		var diag runDiagnostics
		if err := msgpack.Unmarshal(diagnostics, &diag); err != nil {
			return nil, fmt.Errorf("failed to decode diagnostics for run %s: %w", runID, err)
		}
		result.Dropped = diag.Dropped
	}

	return result, nil
}

// loadSnapshotRows fills a result's per-instrument weights and forecasts.
func (r *Repository) loadSnapshotRows(ctx context.Context, result *domain.AllocationResult) error {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT symbol, weight, current_price, predicted_price, lower_bound, upper_bound
		FROM allocation_snapshots
		WHERE as_of_date = ?
		ORDER BY symbol ASC
	`, result.AsOfDate.Format(domain.DateFormat))
	if err != nil {
		return fmt.Errorf("failed to query snapshot rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol                                   string
			weight, current, predicted, lower, upper float64
		)
		if err := rows.Scan(&symbol, &weight, &current, &predicted, &lower, &upper); err != nil {
			return fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		result.Weights[symbol] = weight
		result.Forecasts[symbol] = &domain.ForecastResult{
			Symbol:       symbol,
			AsOfDate:     result.AsOfDate,
			CurrentPrice: current,
			Predicted:    predicted,
			Lower:        lower,
			Upper:        upper,
		}
	}
	return rows.Err()
}
