// Package history implements the series store over per-symbol SQLite files:
// one database per instrument under the history directory, each holding that
// instrument's daily price table. Files are produced by the ingestion
// tooling; this package only reads them.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/aristath/horizon/internal/domain"
)

// Store reads price history from per-symbol database files.
type Store struct {
	historyDir string
	log        zerolog.Logger
}

// NewStore creates a history store rooted at the given directory.
func NewStore(historyDir string, log zerolog.Logger) *Store {
	return &Store{
		historyDir: historyDir,
		log:        log.With().Str("component", "history").Logger(),
	}
}

// GetHistory returns the instrument's closing prices in [start, end],
// ascending by date. Fails with domain.ErrDataUnavailable when the symbol has
// no database file or the range yields zero observations.
func (s *Store) GetHistory(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	db, err := s.openSymbolDB(symbol)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `
		SELECT date, close_price
		FROM daily_prices
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := db.QueryContext(ctx, query,
		start.Format(domain.DateFormat), end.Format(domain.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	series := &domain.PriceSeries{Symbol: symbol}
	for rows.Next() {
		var dateStr string
		var closePrice float64
		if err := rows.Scan(&dateStr, &closePrice); err != nil {
			return nil, fmt.Errorf("failed to scan daily price for %s: %w", symbol, err)
		}

		date, err := time.Parse(domain.DateFormat, dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q for %s: %w", dateStr, symbol, err)
		}
		series.Points = append(series.Points, domain.PricePoint{Date: date, Close: closePrice})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices for %s: %w", symbol, err)
	}

	if series.Len() == 0 {
		return nil, fmt.Errorf("%s has no observations in [%s, %s]: %w",
			symbol, start.Format(domain.DateFormat), end.Format(domain.DateFormat),
			domain.ErrDataUnavailable)
	}

	return series, nil
}

// openSymbolDB opens the history database for a symbol.
func (s *Store) openSymbolDB(symbol string) (*sql.DB, error) {
	// Convert symbol format: RELIANCE.NS -> RELIANCE_NS
	dbSymbol := strings.ReplaceAll(symbol, ".", "_")
	dbPath := filepath.Join(s.historyDir, dbSymbol+".db")

	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("no history database for %s: %w", symbol, domain.ErrDataUnavailable)
	}

	db, err := sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database for %s: %w", symbol, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database for %s: %w", symbol, err)
	}

	return db, nil
}
