package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
	"strategylab/internal/strategy/builtins"
)

func seriesFromCloses(t *testing.T, closes ...float64) *domain.BarSeries {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			AdjClose:  c,
		}
	}
	s, err := domain.NewBarSeries("TEST", domain.TimeframeDaily, bars)
	if err != nil {
		t.Fatalf("NewBarSeries: %v", err)
	}
	return s
}

func smaCross(t *testing.T, short, long int) strategy.Strategy {
	t.Helper()
	s, err := builtins.NewSMACross(short, long)
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}
	return s
}

// pointwise hides the batch path so the simulator calls Signal per bar.
type pointwise struct{ strategy.Strategy }

func checkInvariants(t *testing.T, series *domain.BarSeries, initial float64, res *Result) {
	t.Helper()
	if len(res.EquityCurve) != series.Len() {
		t.Fatalf("len(EquityCurve) = %d, want %d", len(res.EquityCurve), series.Len())
	}
	if len(res.Positions) != series.Len() {
		t.Fatalf("len(Positions) = %d, want %d", len(res.Positions), series.Len())
	}
	for i, p := range res.EquityCurve {
		if !p.Timestamp.Equal(series.At(i).Timestamp) {
			t.Errorf("point %d timestamp = %s, want %s", i, p.Timestamp, series.At(i).Timestamp)
		}
		if p.Drawdown < 0 {
			t.Errorf("point %d drawdown = %v, want >= 0", i, p.Drawdown)
		}
	}
	if got := res.Positions[len(res.Positions)-1]; got != 0 {
		t.Errorf("final position = %d, want flat", got)
	}

	var pnl float64
	for _, tr := range res.Trades {
		pnl += tr.PnL
		if tr.Quantity <= 0 {
			t.Errorf("trade quantity = %d, want > 0", tr.Quantity)
		}
		if !tr.EntryDate.Before(tr.ExitDate) {
			t.Errorf("trade entry %s not before exit %s", tr.EntryDate, tr.ExitDate)
		}
	}
	if diff := math.Abs(pnl - (res.FinalEquity - initial)); diff > 1e-6 {
		t.Errorf("sum(pnl) = %v, final-initial = %v", pnl, res.FinalEquity-initial)
	}
}

func TestRunLinearRiseNoTrades(t *testing.T) {
	series := seriesFromCloses(t, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19)
	sim := NewSimulator(smaCross(t, 2, 4), nil, nil)

	res, err := sim.Run(context.Background(), series, 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariants(t, series, 1000, res)

	if len(res.Trades) != 0 || len(res.Signals) != 0 {
		t.Errorf("got %d trades and %d signals, want none", len(res.Trades), len(res.Signals))
	}
	for i, p := range res.EquityCurve {
		if p.Equity != 1000 {
			t.Errorf("point %d equity = %v, want 1000", i, p.Equity)
		}
	}
}

func TestRunSingleCrossLongToEnd(t *testing.T) {
	series := seriesFromCloses(t, 10, 9, 8, 7, 6, 7, 8, 9, 10, 11)
	sim := NewSimulator(smaCross(t, 2, 4), nil, nil)

	res, err := sim.Run(context.Background(), series, 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariants(t, series, 1000, res)

	if len(res.Signals) != 1 || res.Signals[0].Index != 6 || res.Signals[0].Type != domain.SignalEnterLong {
		t.Fatalf("signals = %+v, want one enter_long at 6", res.Signals)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Direction != domain.DirectionLong || tr.Quantity != 125 || tr.EntryPrice != 8 || tr.ExitPrice != 11 {
		t.Errorf("trade = %+v, want long 125 from 8 to 11", tr)
	}
	if tr.PnL != 375 {
		t.Errorf("PnL = %v, want 375", tr.PnL)
	}
	if !tr.ExitDate.Equal(series.At(9).Timestamp) {
		t.Errorf("exit date = %s, want final bar", tr.ExitDate)
	}
	if tr.HoldingPeriodDays != 3 {
		t.Errorf("HoldingPeriodDays = %v, want 3", tr.HoldingPeriodDays)
	}

	wantEquity := []float64{1000, 1000, 1000, 1000, 1000, 1000, 1000, 1125, 1250, 1375}
	for i, w := range wantEquity {
		if got := res.EquityCurve[i].Equity; got != w {
			t.Errorf("equity[%d] = %v, want %v", i, got, w)
		}
	}
	if res.Positions[6] != 125 || res.Positions[8] != 125 {
		t.Errorf("positions = %v, want 125 held from bar 6", res.Positions)
	}
}

func TestRunShortThenReverse(t *testing.T) {
	series := seriesFromCloses(t, 6, 7, 8, 9, 10, 9, 8, 7, 6, 5, 6, 7, 8, 9)
	sim := NewSimulator(smaCross(t, 2, 4), nil, nil)

	res, err := sim.Run(context.Background(), series, 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariants(t, series, 1000, res)

	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2: %+v", len(res.Trades), res.Trades)
	}
	short, long := res.Trades[0], res.Trades[1]
	if short.Direction != domain.DirectionShort || short.Quantity != 125 || short.PnL != 125 {
		t.Errorf("short trade = %+v, want 125 shares with pnl 125", short)
	}
	if long.Direction != domain.DirectionLong || long.Quantity != 160 || long.PnL != 320 {
		t.Errorf("long trade = %+v, want 160 shares with pnl 320", long)
	}
	if !short.ExitDate.Equal(long.EntryDate) {
		t.Errorf("reversal dates differ: short exit %s, long entry %s", short.ExitDate, long.EntryDate)
	}
	if res.FinalEquity != 1445 {
		t.Errorf("FinalEquity = %v, want 1445", res.FinalEquity)
	}
	if res.Positions[9] != -125 || res.Positions[11] != 160 {
		t.Errorf("positions = %v, want -125 at bar 9 and 160 at bar 11", res.Positions)
	}

	var maxDD float64
	for _, p := range res.EquityCurve {
		maxDD = math.Max(maxDD, p.Drawdown)
	}
	if want := 250.0 / 1375.0; math.Abs(maxDD-want) > 1e-12 {
		t.Errorf("max drawdown = %v, want %v", maxDD, want)
	}
}

func TestRunSkipsZeroSize(t *testing.T) {
	series := seriesFromCloses(t, 100, 90, 80, 70, 60, 70, 80, 90, 100, 110)
	sim := NewSimulator(smaCross(t, 2, 4), nil, nil)

	res, err := sim.Run(context.Background(), series, 50)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariants(t, series, 50, res)
	if len(res.Signals) != 1 {
		t.Errorf("got %d signals, want 1", len(res.Signals))
	}
	if len(res.Trades) != 0 || res.FinalEquity != 50 {
		t.Errorf("trades = %d, final = %v; want no trades and 50", len(res.Trades), res.FinalEquity)
	}
}

func TestRunBatchAndPointwiseAgree(t *testing.T) {
	series := seriesFromCloses(t, 6, 7, 8, 9, 10, 9, 8, 7, 6, 5, 6, 7, 8, 9)
	s := smaCross(t, 2, 4)

	batch, err := NewSimulator(s, nil, nil).Run(context.Background(), series, 1000)
	if err != nil {
		t.Fatalf("batch Run: %v", err)
	}
	single, err := NewSimulator(pointwise{s}, nil, nil).Run(context.Background(), series, 1000)
	if err != nil {
		t.Fatalf("pointwise Run: %v", err)
	}
	if len(batch.EquityCurve) != len(single.EquityCurve) || len(batch.Trades) != len(single.Trades) {
		t.Fatalf("batch and pointwise runs differ in shape")
	}
	for i := range batch.EquityCurve {
		if batch.EquityCurve[i] != single.EquityCurve[i] {
			t.Errorf("point %d: batch %+v, pointwise %+v", i, batch.EquityCurve[i], single.EquityCurve[i])
		}
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	sim := NewSimulator(smaCross(t, 2, 4), nil, nil)

	if _, err := sim.Run(context.Background(), seriesFromCloses(t, 10), 1000); !errors.Is(err, ErrTooFewBars) {
		t.Errorf("single bar err = %v, want ErrTooFewBars", err)
	}
	if _, err := sim.Run(context.Background(), seriesFromCloses(t, 10, 11), 0); !errors.Is(err, ErrInvalidCapital) {
		t.Errorf("zero capital err = %v, want ErrInvalidCapital", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.Run(ctx, seriesFromCloses(t, 10, 11, 12), 1000); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled err = %v, want context.Canceled", err)
	}
}

func TestRiskManagerSize(t *testing.T) {
	cases := []struct {
		pct, equity, price float64
		want               int64
	}{
		{pct: 1, equity: 1000, price: 3, want: 333},
		{pct: 0.5, equity: 1000, price: 3, want: 166},
		{pct: 1, equity: 1000, price: 8, want: 125},
		{pct: 1, equity: 5, price: 10, want: 0},
		{pct: 1, equity: 0, price: 10, want: 0},
		{pct: 2, equity: 100, price: 10, want: 10},
	}
	for _, c := range cases {
		rm := NewRiskManager(c.pct)
		if got := rm.Size(c.equity, c.price); got != c.want {
			t.Errorf("Size(pct=%v, %v, %v) = %d, want %d", c.pct, c.equity, c.price, got, c.want)
		}
	}
}

func TestRiskManagerCheckOrder(t *testing.T) {
	rm := NewRiskManager(0.10)

	order := &domain.Order{
		ID:     "test-order-1",
		Symbol: "AAPL",
		Side:   domain.OrderSideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    10,
		Price:  100,
	}
	account := &domain.AccountInfo{
		Equity:      100000,
		Cash:        50000,
		BuyingPower: 200000,
	}

	if err := rm.CheckOrder(context.Background(), order, account); err != nil {
		t.Fatalf("CheckOrder returned unexpected error: %v", err)
	}

	order.Qty = 101
	if err := rm.CheckOrder(context.Background(), order, account); !errors.Is(err, ErrRiskLimit) {
		t.Errorf("CheckOrder over limit err = %v, want ErrRiskLimit", err)
	}
}

func TestRunLinearRiseStaysFlatThroughWarmup(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	series := seriesFromCloses(t, closes...)
	sim := NewSimulator(smaCross(t, 5, 50), nil, nil)

	res, err := sim.Run(context.Background(), series, 10000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariants(t, series, 10000, res)
	for i := 0; i < 50; i++ {
		if res.Positions[i] != 0 {
			t.Fatalf("position at bar %d = %d, want flat during warmup", i, res.Positions[i])
		}
	}
	if len(res.Trades) != 0 {
		t.Errorf("got %d trades, want none", len(res.Trades))
	}
}
