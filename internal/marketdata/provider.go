// Package marketdata supplies validated bar series to the backtester from
// local Parquet history, the Alpaca market-data API or an in-memory cache.
package marketdata

import (
	"context"
	"errors"
	"time"

	"strategylab/internal/domain"
)

var (
	// ErrNoData is returned when a source has no bars for the request.
	ErrNoData = errors.New("no bars available")
	// ErrUnsupportedTimeframe is returned for timeframes a source cannot serve.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)

// Provider returns the bars of ticker within [start, end] at timeframe tf as
// a validated series.
type Provider interface {
	GetBars(ctx context.Context, ticker string, start, end time.Time, tf domain.Timeframe) (*domain.BarSeries, error)
}
