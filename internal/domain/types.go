// Package domain defines the core value types shared across the backtesting
// engine: bars, signals, orders, positions, trades, equity curves and the
// result records produced by a backtest run.
package domain

import (
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Timeframe is the bar interval of a series.
type Timeframe string

const (
	TimeframeDaily  Timeframe = "1Day"
	TimeframeHourly Timeframe = "1Hour"
	TimeframeMinute Timeframe = "1Min"
)

// Bar is a single OHLCV observation for one instrument.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	AdjClose   float64   `json:"adj_close"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalType is the directional instruction emitted by a strategy for a bar.
type SignalType string

const (
	SignalNone       SignalType = "none"
	SignalEnterLong  SignalType = "enter_long"
	SignalEnterShort SignalType = "enter_short"
)

// Signal records a non-empty strategy signal at a given bar.
type Signal struct {
	StrategyID string     `json:"strategy_id"`
	Symbol     string     `json:"symbol"`
	Index      int        `json:"index"`
	Type       SignalType `json:"type"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Orders and positions
// ---------------------------------------------------------------------------

// OrderSide is the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order. The simulator only issues
// market orders filled at the reference price.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is an instruction submitted to a broker.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Qty            int64       `json:"qty"`
	Price          float64     `json:"price"` // reference price for market fills
	Status         OrderStatus `json:"status"`
	FilledQty      int64       `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionSideFlat  PositionSide = "flat"
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is the signed holding in one instrument. Qty is positive for long,
// negative for short and zero when flat.
type Position struct {
	Symbol        string       `json:"symbol"`
	Qty           int64        `json:"qty"`
	Side          PositionSide `json:"side"`
	AvgEntryPrice float64      `json:"avg_entry_price"`
	OpenedAt      time.Time    `json:"opened_at"`
}

// SideOf derives the position side from a signed quantity.
func SideOf(qty int64) PositionSide {
	switch {
	case qty > 0:
		return PositionSideLong
	case qty < 0:
		return PositionSideShort
	default:
		return PositionSideFlat
	}
}

// AccountInfo is a snapshot of the account's financial state.
type AccountInfo struct {
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}

// ---------------------------------------------------------------------------
// Trades and equity
// ---------------------------------------------------------------------------

// Direction is the side of a closed round-trip trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Trade is a closed round trip. EntryDate is always before ExitDate and
// Quantity is always positive.
type Trade struct {
	EntryDate         time.Time `json:"entry_date"`
	ExitDate          time.Time `json:"exit_date"`
	EntryPrice        float64   `json:"entry_price"`
	ExitPrice         float64   `json:"exit_price"`
	Quantity          int64     `json:"quantity"`
	Direction         Direction `json:"direction"`
	PnL               float64   `json:"pnl"`
	PnLPercentage     float64   `json:"pnl_percentage"`
	HoldingPeriodDays float64   `json:"holding_period_days"`
}

// EquityPoint is the mark-to-market portfolio value after one bar.
// Drawdown is the fractional decline from the running peak and is never
// negative.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Drawdown  float64   `json:"drawdown"`
}

// ---------------------------------------------------------------------------
// Market conditions
// ---------------------------------------------------------------------------

// MarketCondition labels a regime of price behaviour.
type MarketCondition string

const (
	ConditionBull          MarketCondition = "bull"
	ConditionBear          MarketCondition = "bear"
	ConditionSideways      MarketCondition = "sideways"
	ConditionVolatile      MarketCondition = "volatile"
	ConditionLowVolatility MarketCondition = "low_volatility"
)

// MarketConditionPeriod is a labelled span of time.
type MarketConditionPeriod struct {
	Condition  MarketCondition `json:"condition"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	Confidence float64         `json:"confidence"`
}

// RegimePerformance is the equity return attributed to one condition period.
type RegimePerformance struct {
	Period      MarketConditionPeriod `json:"period"`
	StartEquity float64               `json:"start_equity"`
	EndEquity   float64               `json:"end_equity"`
	Return      float64               `json:"return"`
	Points      int                   `json:"points"`
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Params holds the tunable parameters of a crossover-style strategy.
type Params struct {
	ShortPeriod int `json:"short_period"`
	LongPeriod  int `json:"long_period"`
}

// PerformanceMetrics is the derived statistics set of an equity curve.
// Ratio fields are NaN when their denominator is zero; Beta, Alpha,
// InformationRatio and BenchmarkAnnualizedReturn are NaN unless a benchmark
// was supplied.
type PerformanceMetrics struct {
	TotalReturn          float64 `json:"total_return"`
	AverageReturn        float64 `json:"average_return"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	Volatility           float64 `json:"volatility"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	SharpeRatio          Ratio   `json:"sharpe_ratio"`
	SortinoRatio         Ratio   `json:"sortino_ratio"`
	CalmarRatio          Ratio   `json:"calmar_ratio"`
	VaR95                float64 `json:"var_95"`
	CVaR95               float64 `json:"cvar_95"`
	TotalTrades          int     `json:"total_trades"`
	WinRate              float64 `json:"win_rate"`
	ProfitFactor         Ratio   `json:"profit_factor"`
	AverageWin           float64 `json:"average_win"`
	AverageLoss          float64 `json:"average_loss"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	TradesPerMonth       float64 `json:"trades_per_month"`
	AverageHoldingPeriod float64 `json:"average_holding_period"`

	Beta                      Ratio `json:"beta"`
	Alpha                     Ratio `json:"alpha"`
	InformationRatio          Ratio `json:"information_ratio"`
	BenchmarkAnnualizedReturn Ratio `json:"benchmark_annualized_return"`
}

// BacktestResult is the immutable output of one backtest run.
type BacktestResult struct {
	StrategyID       string              `json:"strategy_id"`
	Ticker           string              `json:"ticker"`
	Params           Params              `json:"params"`
	StartDate        time.Time           `json:"start_date"`
	EndDate          time.Time           `json:"end_date"`
	InitialCapital   float64             `json:"initial_capital"`
	FinalCapital     float64             `json:"final_capital"`
	TotalReturn      float64             `json:"total_return"`
	AnnualizedReturn float64             `json:"annualized_return"`
	Trades           []Trade             `json:"trades"`
	Signals          []Signal            `json:"signals"`
	Metrics          PerformanceMetrics  `json:"metrics"`
	EquityCurve      []EquityPoint       `json:"equity_curve"`
	Regimes          []RegimePerformance `json:"regimes,omitempty"`
}
