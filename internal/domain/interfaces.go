package domain

import (
	"context"
	"time"
)

// SeriesStore supplies cleaned price history per instrument. Implementations
// must return observations in ascending date order and fail with
// ErrDataUnavailable when the instrument is unknown or the range yields zero
// observations. Calendar gaps (weekends, holidays) are expected and carry no
// meaning to the engine.
type SeriesStore interface {
	GetHistory(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error)
}

// ResultSink persists allocation snapshots keyed by (as-of date, symbol).
// Upsert must be safe to call repeatedly for the same key — last write wins.
// Write failures wrap ErrPersistence and are retryable by the caller.
type ResultSink interface {
	Upsert(ctx context.Context, result *AllocationResult) error
	ReadRange(ctx context.Context, start, end time.Time) ([]*AllocationResult, error)
}
