package strategylab

import "time"

// Params holds the periods of a crossover strategy.
type Params struct {
	ShortPeriod int `json:"short_period"`
	LongPeriod  int `json:"long_period"`
}

// BacktestRequest describes one backtest. A zero InitialCapital uses the
// server's default.
type BacktestRequest struct {
	StrategyID     string
	Ticker         string
	Params         Params
	Start          time.Time
	End            time.Time
	InitialCapital float64
}

// Stats is a set of named numeric values. Undefined values, such as a
// Sharpe ratio of a flat curve, are nil.
type Stats map[string]*float64

// Get returns the named value and whether it is defined.
func (s Stats) Get(name string) (float64, bool) {
	v, ok := s[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Trade is a closed round trip.
type Trade struct {
	EntryDate         time.Time `json:"entry_date"`
	ExitDate          time.Time `json:"exit_date"`
	EntryPrice        float64   `json:"entry_price"`
	ExitPrice         float64   `json:"exit_price"`
	Quantity          int64     `json:"quantity"`
	Direction         string    `json:"direction"`
	PnL               float64   `json:"pnl"`
	PnLPercentage     float64   `json:"pnl_percentage"`
	HoldingPeriodDays float64   `json:"holding_period_days"`
}

// EquityPoint is the portfolio value at one timestamp.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Drawdown  float64   `json:"drawdown"`
}

// ConditionPeriod is a labelled market regime.
type ConditionPeriod struct {
	Condition  string    `json:"condition"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Confidence float64   `json:"confidence"`
}

// RegimePerformance is the return earned during one regime.
type RegimePerformance struct {
	Period      ConditionPeriod `json:"period"`
	StartEquity float64         `json:"start_equity"`
	EndEquity   float64         `json:"end_equity"`
	Return      float64         `json:"return"`
	Points      int             `json:"points"`
}

// BacktestResult is the outcome of one backtest.
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
	Metrics          Stats               `json:"metrics"`
	EquityCurve      []EquityPoint       `json:"equity_curve"`
	Regimes          []RegimePerformance `json:"regimes,omitempty"`
}

// BatchItem is one outcome of a batch; Error is set when the run failed.
type BatchItem struct {
	Result *BacktestResult `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchResult holds batch outcomes in request order and their aggregate.
type BatchResult struct {
	Items   []BatchItem `json:"items"`
	Summary Stats       `json:"summary"`
}

// MetricsResult is the analysis of a standalone equity curve.
type MetricsResult struct {
	Metrics Stats   `json:"metrics"`
	Trades  []Trade `json:"trades"`
}
