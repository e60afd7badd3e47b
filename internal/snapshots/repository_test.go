package snapshots

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/horizon/internal/database"
	"github.com/aristath/horizon/internal/domain"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "snapshots.db"),
		Profile: database.ProfileStandard,
		Name:    "snapshots-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.InitSchema())
	return repo
}

func date(s string) time.Time {
	t, err := time.Parse(domain.DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleResult(runID string, asOf time.Time, symbols ...string) *domain.AllocationResult {
	weights := make(map[string]float64, len(symbols))
	forecasts := make(map[string]*domain.ForecastResult, len(symbols))
	for i, sym := range symbols {
		weights[sym] = 1.0 / float64(len(symbols))
		price := 100.0 + float64(i)*50
		forecasts[sym] = &domain.ForecastResult{
			Symbol:       sym,
			AsOfDate:     asOf,
			CurrentPrice: price,
			Predicted:    price * 1.02,
			Lower:        price * 0.99,
			Upper:        price * 1.05,
		}
	}
	return &domain.AllocationResult{
		RunID:          runID,
		AsOfDate:       asOf,
		Weights:        weights,
		ObjectiveValue: 0.0123,
		SolverStatus:   "optimal",
		Forecasts:      forecasts,
		CreatedAt:      time.Date(2024, 7, 1, 18, 30, 0, 0, time.UTC),
	}
}

func TestRepository_UpsertAndReadBack(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	asOf := date("2024-07-01")
	result := sampleResult("run-1", asOf, "A.NS", "B.NS")
	result.Dropped = []domain.DroppedInstrument{{Symbol: "C.NS", Reason: "insufficient history"}}
	require.NoError(t, repo.Upsert(ctx, result))

	got, err := repo.ReadRange(ctx, asOf, asOf)
	require.NoError(t, err)
	require.Len(t, got, 1)

	stored := got[0]
	assert.Equal(t, "run-1", stored.RunID)
	assert.Equal(t, asOf, stored.AsOfDate)
	assert.Equal(t, "optimal", stored.SolverStatus)
	assert.InDelta(t, 0.0123, stored.ObjectiveValue, 1e-12)

	require.Len(t, stored.Weights, 2)
	assert.InDelta(t, 0.5, stored.Weights["A.NS"], 1e-12)
	assert.InDelta(t, 0.5, stored.Weights["B.NS"], 1e-12)

	fc := stored.Forecasts["A.NS"]
	require.NotNil(t, fc)
	assert.InDelta(t, 100.0, fc.CurrentPrice, 1e-12)
	assert.InDelta(t, 102.0, fc.Predicted, 1e-12)

	require.Len(t, stored.Dropped, 1)
	assert.Equal(t, "C.NS", stored.Dropped[0].Symbol)
	assert.Equal(t, "insufficient history", stored.Dropped[0].Reason)
}

func TestRepository_UpsertReplacesPriorRun(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()
	asOf := date("2024-07-01")

	require.NoError(t, repo.Upsert(ctx, sampleResult("run-1", asOf, "A.NS", "B.NS", "C.NS")))

	// Re-run with a smaller universe; C.NS must disappear from the stored
	// snapshot, not linger from the first write.
	require.NoError(t, repo.Upsert(ctx, sampleResult("run-2", asOf, "A.NS", "B.NS")))

	got, err := repo.ReadRange(ctx, asOf, asOf)
	require.NoError(t, err)
	require.Len(t, got, 1, "one run row per date after re-run")

	stored := got[0]
	assert.Equal(t, "run-2", stored.RunID)
	assert.Len(t, stored.Weights, 2)
	assert.NotContains(t, stored.Weights, "C.NS")
}

func TestRepository_ReadRangeOrdering(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	// Insert out of date order.
	require.NoError(t, repo.Upsert(ctx, sampleResult("run-b", date("2024-07-02"), "A.NS", "B.NS")))
	require.NoError(t, repo.Upsert(ctx, sampleResult("run-a", date("2024-07-01"), "A.NS", "B.NS")))
	require.NoError(t, repo.Upsert(ctx, sampleResult("run-c", date("2024-07-03"), "A.NS", "B.NS")))

	got, err := repo.ReadRange(ctx, date("2024-07-01"), date("2024-07-02"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-a", got[0].RunID)
	assert.Equal(t, "run-b", got[1].RunID)
}

func TestRepository_Latest(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	t.Run("empty repository", func(t *testing.T) {
		latest, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("returns most recent date", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, sampleResult("run-1", date("2024-07-01"), "A.NS", "B.NS")))
		require.NoError(t, repo.Upsert(ctx, sampleResult("run-2", date("2024-07-02"), "A.NS", "B.NS")))

		latest, err := repo.Latest(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "run-2", latest.RunID)
		assert.Len(t, latest.Weights, 2)
	})
}

func TestRepository_UpsertRejectsWeightWithoutForecast(t *testing.T) {
	repo := testRepository(t)

	result := sampleResult("run-1", date("2024-07-01"), "A.NS")
	result.Weights["GHOST.NS"] = 0.1
	err := repo.Upsert(context.Background(), result)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}
