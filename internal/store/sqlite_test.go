package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func sampleResult(ticker string) *domain.BacktestResult {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return &domain.BacktestResult{
		StrategyID:       "sma-cross",
		Ticker:           ticker,
		Params:           domain.Params{ShortPeriod: 5, LongPeriod: 20},
		StartDate:        start,
		EndDate:          start.AddDate(0, 6, 0),
		InitialCapital:   10000,
		FinalCapital:     11000,
		TotalReturn:      0.1,
		AnnualizedReturn: 0.2,
		Trades: []domain.Trade{
			{EntryDate: start.AddDate(0, 0, 30), ExitDate: start.AddDate(0, 0, 40), EntryPrice: 100, ExitPrice: 110,
				Quantity: 100, Direction: domain.DirectionLong, PnL: 1000, PnLPercentage: 10, HoldingPeriodDays: 10},
			{EntryDate: start.AddDate(0, 0, 40), ExitDate: start.AddDate(0, 0, 50), EntryPrice: 110, ExitPrice: 110,
				Quantity: 90, Direction: domain.DirectionShort, HoldingPeriodDays: 10},
		},
		Metrics: domain.PerformanceMetrics{
			TotalReturn:  0.1,
			SharpeRatio:  1.25,
			SortinoRatio: domain.Undefined(),
			CalmarRatio:  domain.Undefined(),
			ProfitFactor: domain.Undefined(),
			Beta:         domain.Undefined(),
			Alpha:        domain.Undefined(),
			MaxDrawdown:  -0.05,
			TotalTrades:  2,
		},
	}
}

func TestSQLiteStoreSaveAndGet(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	in := sampleResult("aapl")
	id, err := s.SaveResult(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, in.Params, got.Params)
	assert.True(t, in.StartDate.Equal(got.StartDate))
	assert.Equal(t, 11000.0, got.FinalCapital)
	assert.Equal(t, domain.Ratio(1.25), got.Metrics.SharpeRatio)
	assert.False(t, got.Metrics.SortinoRatio.Defined(), "undefined ratios survive the archive")
	assert.False(t, got.CreatedAt.IsZero())

	trades, err := s.ListTrades(ctx, id)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, in.Trades[0].PnL, trades[0].PnL)
	assert.Equal(t, domain.DirectionShort, trades[1].Direction)
	assert.True(t, in.Trades[1].ExitDate.Equal(trades[1].ExitDate))
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	s := openTestSQLite(t)
	_, err := s.GetResult(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreListResults(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	clock := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	var ids []string
	for _, ticker := range []string{"AAPL", "MSFT", "AAPL"} {
		id, err := s.SaveResult(ctx, sampleResult(ticker))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := s.ListResults(ctx, ResultFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	aapl, err := s.ListResults(ctx, ResultFilter{Ticker: "aapl"})
	require.NoError(t, err)
	assert.Len(t, aapl, 2)

	limited, err := s.ListResults(ctx, ResultFilter{StrategyID: "sma-cross", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListResults(ctx, ResultFilter{StrategyID: "ema-cross"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStoreRejectsIncompleteResult(t *testing.T) {
	s := openTestSQLite(t)
	_, err := s.SaveResult(context.Background(), &domain.BacktestResult{Ticker: "AAPL"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
