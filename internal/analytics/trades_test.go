package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

func TestExtractTradesSingleSwing(t *testing.T) {
	curve := curveOf(100, 90, 81, 90, 100)
	trades := ExtractTrades(curve)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, 81.0, tr.EntryPrice)
	assert.Equal(t, 100.0, tr.ExitPrice)
	assert.Equal(t, 19.0, tr.PnL)
	assert.Equal(t, int64(1), tr.Quantity)
	assert.Equal(t, domain.DirectionLong, tr.Direction)
	assert.True(t, tr.EntryDate.Before(tr.ExitDate))
	assert.Equal(t, 2.0, tr.HoldingPeriodDays)
}

func TestExtractTradesClosesAtPeak(t *testing.T) {
	curve := curveOf(100, 95, 105, 98, 110, 104)
	trades := ExtractTrades(curve)
	require.Len(t, trades, 2)
	assert.Equal(t, 95.0, trades[0].EntryPrice)
	assert.Equal(t, 105.0, trades[0].ExitPrice)
	assert.Equal(t, 98.0, trades[1].EntryPrice)
	assert.Equal(t, 110.0, trades[1].ExitPrice)
}

func TestExtractTradesNoExtrema(t *testing.T) {
	assert.Empty(t, ExtractTrades(curveOf(100, 101, 102, 103)))
	assert.Empty(t, ExtractTrades(curveOf(100, 100, 100)))
	assert.Empty(t, ExtractTrades(curveOf(100)))
	assert.Empty(t, ExtractTrades(nil))
}

func TestExtractTradesValleyAtPenultimatePoint(t *testing.T) {
	trades := ExtractTrades(curveOf(100, 90, 95))
	require.Len(t, trades, 1)
	assert.Equal(t, 90.0, trades[0].EntryPrice)
	assert.Equal(t, 95.0, trades[0].ExitPrice)
}
