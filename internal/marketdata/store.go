package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/store"
)

// Compile-time interface check.
var _ Provider = (*StoreProvider)(nil)

// StoreProvider reads bars from a local BarStore.
type StoreProvider struct {
	bars   store.BarStore
	market string
}

// NewStoreProvider creates a StoreProvider reading market from bars.
func NewStoreProvider(bars store.BarStore, market string) *StoreProvider {
	if market == "" {
		market = string(domain.MarketUS)
	}
	return &StoreProvider{bars: bars, market: market}
}

// GetBars reads the stored bars and validates them into a series.
func (p *StoreProvider) GetBars(ctx context.Context, ticker string, start, end time.Time, tf domain.Timeframe) (*domain.BarSeries, error) {
	ticker = strings.ToUpper(ticker)
	bars, err := p.bars.ReadBars(ctx, ticker, p.market, tf, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading %s bars for %s: %w", tf, ticker, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s in store between %s and %s",
			ErrNoData, ticker, tf, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return domain.NewBarSeries(ticker, tf, bars)
}
