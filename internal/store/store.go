// Package store defines storage interfaces for bar history and archived
// backtest results, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"strategylab/internal/domain"
)

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under market and timeframe, merging
	// with any bars already stored for the same timestamps.
	WriteBars(ctx context.Context, market string, tf domain.Timeframe, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol, market string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market
	// and timeframe.
	ListSymbols(ctx context.Context, market string, tf domain.Timeframe) ([]string, error)
}

// ResultSummary is the archived header of one backtest run.
type ResultSummary struct {
	ID               string                    `json:"id"`
	StrategyID       string                    `json:"strategy_id"`
	Ticker           string                    `json:"ticker"`
	Params           domain.Params             `json:"params"`
	StartDate        time.Time                 `json:"start_date"`
	EndDate          time.Time                 `json:"end_date"`
	InitialCapital   float64                   `json:"initial_capital"`
	FinalCapital     float64                   `json:"final_capital"`
	TotalReturn      float64                   `json:"total_return"`
	AnnualizedReturn float64                   `json:"annualized_return"`
	Metrics          domain.PerformanceMetrics `json:"metrics"`
	CreatedAt        time.Time                 `json:"created_at"`
}

// ResultFilter narrows ListResults. Zero fields match everything.
type ResultFilter struct {
	StrategyID string
	Ticker     string
	Limit      int
}

// ResultStore archives backtest results and their trade ledgers.
type ResultStore interface {
	// SaveResult stores result and returns the generated record id.
	SaveResult(ctx context.Context, result *domain.BacktestResult) (string, error)

	// GetResult retrieves a summary by id.
	GetResult(ctx context.Context, id string) (*ResultSummary, error)

	// ListResults returns summaries newest first.
	ListResults(ctx context.Context, filter ResultFilter) ([]ResultSummary, error)

	// ListTrades returns the ledger of an archived result in order.
	ListTrades(ctx context.Context, id string) ([]domain.Trade, error)
}
