// Package backtest orchestrates a complete backtest: it fetches bars, runs a
// strategy through the simulator, derives performance metrics and regime
// attribution, and memoises the result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"strategylab/internal/analytics"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/marketdata"
	"strategylab/internal/observability"
	"strategylab/internal/regime"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("invalid backtest configuration")
	// ErrProvider is returned when market data could not be fetched.
	ErrProvider = errors.New("market data unavailable")
)

// ConfigError reports a backtest request that can never succeed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid backtest configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Request is the input tuple of one backtest.
type Request struct {
	StrategyID     string        `json:"strategy_id"`
	Ticker         string        `json:"ticker"`
	Params         domain.Params `json:"params"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	InitialCapital float64       `json:"initial_capital"`
}

// Key returns the cache key of r.
func (r Request) Key() CacheKey {
	return NewCacheKey(r.StrategyID, r.Ticker, r.Params, r.Start, r.End, r.InitialCapital)
}

// Options configures a Backtester. Registry and Provider are required.
type Options struct {
	Registry *strategy.Registry
	Provider marketdata.Provider

	// Regimes enables per-regime attribution when set.
	Regimes regime.Provider
	// Archive receives every freshly computed result when set.
	Archive store.ResultStore
	Metrics *observability.Metrics

	Analyzer        *analytics.Analyzer
	Risk            *engine.RiskManager
	Timeframe       domain.Timeframe
	BenchmarkTicker string
	MaxWorkers      int
	CacheSize       int
	Log             *slog.Logger
}

// Backtester runs backtests. It is safe for concurrent use.
type Backtester struct {
	registry  *strategy.Registry
	provider  marketdata.Provider
	regimes   regime.Provider
	archive   store.ResultStore
	metrics   *observability.Metrics
	analyzer  *analytics.Analyzer
	risk      *engine.RiskManager
	timeframe domain.Timeframe
	benchmark string
	workers   int
	cache     *ResultCache
	log       *slog.Logger
}

// New creates a Backtester from opts.
func New(opts Options) (*Backtester, error) {
	if opts.Registry == nil {
		return nil, errors.New("backtest: strategy registry is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("backtest: market data provider is required")
	}
	b := &Backtester{
		registry:  opts.Registry,
		provider:  opts.Provider,
		regimes:   opts.Regimes,
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		analyzer:  opts.Analyzer,
		risk:      opts.Risk,
		timeframe: opts.Timeframe,
		benchmark: strings.ToUpper(strings.TrimSpace(opts.BenchmarkTicker)),
		workers:   opts.MaxWorkers,
		cache:     NewResultCache(opts.CacheSize),
		log:       opts.Log,
	}
	if b.analyzer == nil {
		b.analyzer = analytics.NewAnalyzer(analytics.DefaultRiskFreeRate)
	}
	if b.risk == nil {
		b.risk = engine.NewRiskManager(1)
	}
	if b.timeframe == "" {
		b.timeframe = domain.TimeframeDaily
	}
	if b.workers < 1 {
		b.workers = 1
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.log = b.log.With("component", "backtest")
	return b, nil
}

// Strategies returns the registered strategy ids.
func (b *Backtester) Strategies() []string { return b.registry.List() }

// CacheLen returns the number of memoised results.
func (b *Backtester) CacheLen() int { return b.cache.Len() }

// RunBacktest runs one backtest from positional arguments.
func (b *Backtester) RunBacktest(
	ctx context.Context,
	strategyID, ticker string,
	params domain.Params,
	start, end time.Time,
	initialCapital float64,
) (*domain.BacktestResult, error) {
	return b.Run(ctx, Request{
		StrategyID:     strategyID,
		Ticker:         ticker,
		Params:         params,
		Start:          start,
		End:            end,
		InitialCapital: initialCapital,
	})
}

// Run executes req, returning a memoised result when one exists. Identical
// requests yield the same result. The returned result is shared and must
// not be modified.
func (b *Backtester) Run(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	req, strat, err := b.prepare(req)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	res, outcome, err := b.cache.Do(req.Key(), func() (*domain.BacktestResult, error) {
		return b.compute(ctx, req, strat)
	})
	b.metrics.RecordCache(outcome)
	if err != nil {
		if outcome == observability.CacheMiss {
			b.metrics.RecordRun(req.StrategyID, observability.StatusError, time.Since(began).Seconds(), 0)
		}
		return nil, err
	}
	if outcome == observability.CacheMiss {
		b.metrics.RecordRun(req.StrategyID, observability.StatusOK, time.Since(began).Seconds(), len(res.Trades))
		b.metrics.SetCacheEntries(b.cache.Len())
	}
	return res, nil
}

// prepare normalises req and builds its strategy.
func (b *Backtester) prepare(req Request) (Request, strategy.Strategy, error) {
	req.StrategyID = strings.TrimSpace(req.StrategyID)
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	req.Start = req.Start.UTC()
	req.End = req.End.UTC()

	if req.Ticker == "" {
		return req, nil, &ConfigError{Field: "ticker", Reason: "must not be empty"}
	}
	if !req.Start.Before(req.End) {
		return req, nil, &ConfigError{Field: "range", Reason: "start must be before end"}
	}
	if req.InitialCapital <= 0 || math.IsNaN(req.InitialCapital) || math.IsInf(req.InitialCapital, 0) {
		return req, nil, &ConfigError{Field: "initial_capital", Reason: fmt.Sprintf("must be positive, got %v", req.InitialCapital)}
	}

	strat, err := b.registry.Build(req.StrategyID, req.Params)
	if errors.Is(err, strategy.ErrUnknownStrategy) {
		return req, nil, &ConfigError{Field: "strategy_id", Reason: err.Error()}
	}
	if err != nil {
		return req, nil, &ConfigError{Field: "params", Reason: err.Error()}
	}
	return req, strat, nil
}

// compute runs the full pipeline for a validated request.
func (b *Backtester) compute(ctx context.Context, req Request, strat strategy.Strategy) (*domain.BacktestResult, error) {
	log := b.log.With("strategy", req.StrategyID, "ticker", req.Ticker)

	series, err := b.fetch(ctx, req.Ticker, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if series.Len() < 2 {
		return nil, &ConfigError{Field: "range", Reason: fmt.Sprintf("%s has %d bar(s), need at least two", req.Ticker, series.Len())}
	}

	sim := engine.NewSimulator(strat, b.risk, b.log)
	out, err := sim.Run(ctx, series, req.InitialCapital)
	if err != nil {
		return nil, fmt.Errorf("simulating %s on %s: %w", req.StrategyID, req.Ticker, err)
	}

	// A non-nil ledger keeps the analyzer from reconstructing trades.
	trades := out.Trades
	if trades == nil {
		trades = []domain.Trade{}
	}

	metrics, err := b.analyzer.Analyze(analytics.MetricsInput{
		Curve:     out.EquityCurve,
		Trades:    trades,
		Benchmark: b.benchmarkCurve(ctx, log, req),
	})
	if err != nil {
		return nil, fmt.Errorf("computing metrics: %w", err)
	}

	signals := out.Signals
	if signals == nil {
		signals = []domain.Signal{}
	}

	res := &domain.BacktestResult{
		StrategyID:       req.StrategyID,
		Ticker:           req.Ticker,
		Params:           req.Params,
		StartDate:        req.Start,
		EndDate:          req.End,
		InitialCapital:   req.InitialCapital,
		FinalCapital:     out.FinalEquity,
		TotalReturn:      out.FinalEquity/req.InitialCapital - 1,
		AnnualizedReturn: metrics.AnnualizedReturn,
		Trades:           trades,
		Signals:          signals,
		Metrics:          metrics,
		EquityCurve:      out.EquityCurve,
		Regimes:          b.attribute(ctx, log, req, out.EquityCurve),
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.save(ctx, log, res)

	log.Info("backtest complete",
		"bars", series.Len(),
		"trades", len(res.Trades),
		"finalCapital", res.FinalCapital,
		"totalReturn", res.TotalReturn,
	)
	return res, nil
}

func (b *Backtester) fetch(ctx context.Context, ticker string, start, end time.Time) (*domain.BarSeries, error) {
	series, err := b.provider.GetBars(ctx, ticker, start, end, b.timeframe)
	switch {
	case err == nil:
		return series, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, marketdata.ErrNoData):
		return nil, &ConfigError{Field: "range", Reason: fmt.Sprintf("no bars for %s", ticker)}
	default:
		return nil, fmt.Errorf("%w: %s: %w", ErrProvider, ticker, err)
	}
}

// benchmarkCurve returns the benchmark's buy-and-hold curve scaled to the
// request's capital, or nil when no benchmark is configured or it cannot be
// fetched.
func (b *Backtester) benchmarkCurve(ctx context.Context, log *slog.Logger, req Request) []domain.EquityPoint {
	if b.benchmark == "" || b.benchmark == req.Ticker {
		return nil
	}
	series, err := b.provider.GetBars(ctx, b.benchmark, req.Start, req.End, b.timeframe)
	if err != nil {
		log.Warn("benchmark unavailable", "benchmark", b.benchmark, "error", err)
		return nil
	}
	return BuyAndHold(series, req.InitialCapital)
}

// BuyAndHold converts a series into the equity curve of holding capital's
// worth of it from the first close.
func BuyAndHold(series *domain.BarSeries, capital float64) []domain.EquityPoint {
	bars := series.View()
	if len(bars) == 0 {
		return nil
	}
	base := bars[0].Close
	curve := make([]domain.EquityPoint, len(bars))
	peak := capital
	for i, bar := range bars {
		eq := capital * bar.Close / base
		if eq > peak {
			peak = eq
		}
		curve[i] = domain.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    eq,
			Drawdown:  (peak - eq) / peak,
		}
	}
	return curve
}

// attribute returns per-regime performance, or nil when no regime provider
// is configured or it fails.
func (b *Backtester) attribute(ctx context.Context, log *slog.Logger, req Request, curve []domain.EquityPoint) []domain.RegimePerformance {
	if b.regimes == nil {
		return nil
	}
	periods, err := b.regimes.Detect(ctx, req.Ticker, req.Start, req.End)
	if err != nil {
		log.Warn("regime detection failed, attribution omitted", "error", err)
		return nil
	}
	perf, err := analytics.AttributeRegimes(curve, periods)
	if err != nil {
		log.Warn("regime attribution failed", "error", err)
		return nil
	}
	return perf
}

func (b *Backtester) save(ctx context.Context, log *slog.Logger, res *domain.BacktestResult) {
	if b.archive == nil {
		return
	}
	id, err := b.archive.SaveResult(ctx, res)
	if err != nil {
		b.metrics.RecordArchiveError()
		log.Warn("archiving result failed", "error", err)
		return
	}
	log.Debug("result archived", "id", id)
}
