package analytics

import "strategylab/internal/domain"

// ExtractTrades approximates round trips from an equity curve by local
// extremum detection. Point i is a valley when it is strictly below both
// neighbours and a peak when strictly above both. While flat the next valley
// opens a swing at its equity value; while in a swing the next peak closes it
// with pnl = exit - entry. A swing still open at the final point is closed
// there, mirroring the simulator's end-of-data rule.
//
// The result describes directional swings of the curve, not order fills, and
// need not agree with a simulator ledger. Every trade is long with quantity
// 1 and prices expressed in equity units.
func ExtractTrades(curve []domain.EquityPoint) []domain.Trade {
	var trades []domain.Trade
	entry := -1
	for i := 1; i < len(curve)-1; i++ {
		prev, cur, next := curve[i-1].Equity, curve[i].Equity, curve[i+1].Equity
		switch {
		case entry < 0 && cur < prev && cur < next:
			entry = i
		case entry >= 0 && cur > prev && cur > next:
			trades = append(trades, swingTrade(curve[entry], curve[i]))
			entry = -1
		}
	}
	if last := len(curve) - 1; entry >= 0 && last > entry {
		trades = append(trades, swingTrade(curve[entry], curve[last]))
	}
	return trades
}

func swingTrade(entry, exit domain.EquityPoint) domain.Trade {
	pnl := exit.Equity - entry.Equity
	pct := 0.0
	if entry.Equity != 0 {
		pct = pnl / entry.Equity * 100
	}
	return domain.Trade{
		EntryDate:         entry.Timestamp,
		ExitDate:          exit.Timestamp,
		EntryPrice:        entry.Equity,
		ExitPrice:         exit.Equity,
		Quantity:          1,
		Direction:         domain.DirectionLong,
		PnL:               pnl,
		PnLPercentage:     pct,
		HoldingPeriodDays: exit.Timestamp.Sub(entry.Timestamp).Hours() / 24,
	}
}
