// Package engine runs a strategy over a bar series against a paper broker,
// producing the mark-to-market equity curve and the ledger of closed trades.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"strategylab/internal/broker"
	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

var (
	// ErrTooFewBars is returned for series shorter than two bars.
	ErrTooFewBars = errors.New("series needs at least two bars")
	// ErrInvalidCapital is returned for non-positive initial capital.
	ErrInvalidCapital = errors.New("initial capital must be positive")
)

// ctxCheckInterval is how many bars are processed between context checks.
const ctxCheckInterval = 256

// Result is the output of one simulation run.
type Result struct {
	EquityCurve []domain.EquityPoint
	Trades      []domain.Trade
	Signals     []domain.Signal
	// Positions holds the signed quantity held after each bar.
	Positions   []int64
	FinalEquity float64
}

// Simulator executes strategy signals at the close of the bar that produced
// them. It holds no per-run state, so one Simulator may serve concurrent
// runs.
type Simulator struct {
	strategy strategy.Strategy
	risk     *RiskManager
	log      *slog.Logger
}

// NewSimulator creates a Simulator for s. A nil risk manager commits all
// available equity to each entry.
func NewSimulator(s strategy.Strategy, risk *RiskManager, log *slog.Logger) *Simulator {
	if risk == nil {
		risk = NewRiskManager(1)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		strategy: s,
		risk:     risk,
		log:      log.With("component", "simulator", "strategy", s.Name()),
	}
}

// run carries the mutable state of a single simulation.
type run struct {
	sim    *Simulator
	broker *broker.PaperBroker
	symbol string
	trades []domain.Trade
}

// Run folds the series through the strategy. Every bar yields exactly one
// equity point and any position still open at the final bar is closed at
// its close, so the returned curve always ends flat.
func (s *Simulator) Run(ctx context.Context, series *domain.BarSeries, initialCapital float64) (*Result, error) {
	if series == nil || series.Len() < 2 {
		return nil, ErrTooFewBars
	}
	if initialCapital <= 0 || math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapital, initialCapital)
	}

	bars := series.View()
	last := len(bars) - 1
	warmup := s.strategy.Warmup()

	var batch []domain.SignalType
	if bs, ok := s.strategy.(strategy.BatchStrategy); ok {
		batch = bs.Signals(bars)
	}

	r := &run{
		sim:    s,
		broker: broker.NewPaperBroker(initialCapital),
		symbol: series.Ticker(),
	}
	res := &Result{
		EquityCurve: make([]domain.EquityPoint, 0, len(bars)),
		Positions:   make([]int64, 0, len(bars)),
	}

	peak := initialCapital
	for i, bar := range bars {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		r.broker.Mark(r.symbol, bar.Close)

		if i >= warmup {
			var sig domain.SignalType
			if batch != nil {
				sig = batch[i]
			} else {
				sig = s.strategy.Signal(bars, i)
			}
			if sig != domain.SignalNone {
				res.Signals = append(res.Signals, domain.Signal{
					StrategyID: s.strategy.Name(),
					Symbol:     r.symbol,
					Index:      i,
					Type:       sig,
					CreatedAt:  bar.Timestamp,
				})
				// No entries on the final bar: they would be closed at the
				// same price in the same step.
				if err := r.apply(ctx, bar, sig, i < last); err != nil {
					return nil, fmt.Errorf("bar %d: %w", i, err)
				}
			}
		}

		if i == last {
			if err := r.closePosition(ctx, bar); err != nil {
				return nil, fmt.Errorf("closing at end of data: %w", err)
			}
		}

		acct, err := r.broker.GetAccount(ctx)
		if err != nil {
			return nil, err
		}
		equity := acct.Equity
		if equity > peak {
			peak = equity
		}
		drawdown := 0.0
		if peak > 0 && equity < peak {
			drawdown = (peak - equity) / peak
		}
		res.EquityCurve = append(res.EquityCurve, domain.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    equity,
			Drawdown:  drawdown,
		})

		pos, err := r.broker.GetPosition(ctx, r.symbol)
		if err != nil {
			return nil, err
		}
		res.Positions = append(res.Positions, pos.Qty)
	}

	res.Trades = r.trades
	res.FinalEquity = res.EquityCurve[last].Equity
	s.log.Debug("simulation complete",
		"ticker", r.symbol,
		"bars", len(bars),
		"signals", len(res.Signals),
		"trades", len(res.Trades),
		"final_equity", res.FinalEquity,
	)
	return res, nil
}

// apply reacts to a non-empty signal: a matching position is kept, an
// opposite one is closed and, when allowed, a new one is opened.
func (r *run) apply(ctx context.Context, bar domain.Bar, sig domain.SignalType, allowEntry bool) error {
	want := domain.PositionSideLong
	side := domain.OrderSideBuy
	if sig == domain.SignalEnterShort {
		want = domain.PositionSideShort
		side = domain.OrderSideSell
	}

	pos, err := r.broker.GetPosition(ctx, r.symbol)
	if err != nil {
		return err
	}
	if pos.Side == want {
		return nil
	}
	if err := r.closePosition(ctx, bar); err != nil {
		return err
	}
	if !allowEntry {
		return nil
	}

	acct, err := r.broker.GetAccount(ctx)
	if err != nil {
		return err
	}
	qty := r.sim.risk.Size(acct.Equity, bar.Close)
	if qty == 0 {
		r.sim.log.Debug("signal skipped: position size is zero",
			"ticker", r.symbol, "time", bar.Timestamp, "equity", acct.Equity, "close", bar.Close)
		return nil
	}

	order := &domain.Order{
		Symbol:    r.symbol,
		Side:      side,
		Type:      domain.OrderTypeMarket,
		Qty:       qty,
		Price:     bar.Close,
		Status:    domain.OrderStatusNew,
		CreatedAt: bar.Timestamp,
	}
	if err := r.sim.risk.CheckOrder(ctx, order, acct); err != nil {
		return err
	}
	if _, err := r.broker.SubmitOrder(ctx, order); err != nil {
		return err
	}
	r.sim.log.Debug("position opened",
		"ticker", r.symbol, "side", want, "qty", qty, "price", bar.Close, "time", bar.Timestamp)
	return nil
}

// closePosition flattens any open position at bar's close and records the
// round trip in the ledger.
func (r *run) closePosition(ctx context.Context, bar domain.Bar) error {
	pos, err := r.broker.GetPosition(ctx, r.symbol)
	if err != nil {
		return err
	}
	if pos.Qty == 0 {
		return nil
	}

	qty := pos.Qty
	side := domain.OrderSideSell
	dir := domain.DirectionLong
	if qty < 0 {
		qty = -qty
		side = domain.OrderSideBuy
		dir = domain.DirectionShort
	}

	order := &domain.Order{
		Symbol:    r.symbol,
		Side:      side,
		Type:      domain.OrderTypeMarket,
		Qty:       qty,
		Price:     bar.Close,
		Status:    domain.OrderStatusNew,
		CreatedAt: bar.Timestamp,
	}
	if _, err := r.broker.SubmitOrder(ctx, order); err != nil {
		return err
	}

	pnl := (bar.Close - pos.AvgEntryPrice) * float64(qty)
	if dir == domain.DirectionShort {
		pnl = -pnl
	}
	cost := pos.AvgEntryPrice * float64(qty)
	r.trades = append(r.trades, domain.Trade{
		EntryDate:         pos.OpenedAt,
		ExitDate:          bar.Timestamp,
		EntryPrice:        pos.AvgEntryPrice,
		ExitPrice:         bar.Close,
		Quantity:          qty,
		Direction:         dir,
		PnL:               pnl,
		PnLPercentage:     pnl / cost * 100,
		HoldingPeriodDays: bar.Timestamp.Sub(pos.OpenedAt).Hours() / 24,
	})
	r.sim.log.Debug("position closed",
		"ticker", r.symbol, "direction", dir, "qty", qty, "pnl", pnl, "time", bar.Timestamp)
	return nil
}
