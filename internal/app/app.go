// Package app wires configuration into the runtime components shared by the
// server and the CLI.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"strategylab/internal/analytics"
	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/marketdata"
	"strategylab/internal/observability"
	"strategylab/internal/regime"
	"strategylab/internal/store"
	"strategylab/internal/strategy/builtins"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Bars       *store.ParquetStore
	Provider   marketdata.Provider
	Archive    *store.SQLiteStore
	Analyzer   *analytics.Analyzer
	Metrics    *observability.Metrics
	Backtester *backtest.Backtester
	Log        *slog.Logger
}

// New builds an App from cfg. The archive is opened only when a SQLite path
// is configured.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		Config:   cfg,
		Bars:     store.NewParquetStore(cfg.Storage.DataDir),
		Analyzer: analytics.NewAnalyzer(cfg.Backtest.RiskFreeRate),
		Metrics:  observability.NewMetrics("strategylab"),
		Log:      log,
	}

	source, err := a.source()
	if err != nil {
		return nil, err
	}
	a.Provider = marketdata.NewCachingProvider(source, cfg.Backtest.CacheSize)

	opts := backtest.Options{
		Registry:        builtins.NewRegistry(),
		Provider:        a.Provider,
		Metrics:         a.Metrics,
		Analyzer:        a.Analyzer,
		Risk:            engine.NewRiskManager(cfg.Trading.MaxPositionPct),
		Timeframe:       domain.Timeframe(cfg.Backtest.Timeframe),
		BenchmarkTicker: cfg.Backtest.BenchmarkTicker,
		MaxWorkers:      cfg.Backtest.MaxWorkers,
		CacheSize:       cfg.Backtest.CacheSize,
		Log:             log,
	}
	if cfg.Backtest.DetectRegimes {
		opts.Regimes = regime.NewDetector(a.Provider, regime.Config{
			Window:         cfg.Regime.Window,
			TrendThreshold: cfg.Regime.TrendThreshold,
			HighVolatility: cfg.Regime.HighVolatility,
			LowVolatility:  cfg.Regime.LowVolatility,
		}, log)
	}

	if cfg.Storage.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
		a.Archive, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening result archive: %w", err)
		}
		opts.Archive = a.Archive
	}

	a.Backtester, err = backtest.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info("components ready",
		"dataSource", cfg.Backtest.DataSource,
		"timeframe", cfg.Backtest.Timeframe,
		"archive", cfg.Storage.SQLitePath != "",
		"regimes", cfg.Backtest.DetectRegimes,
	)
	return a, nil
}

func (a *App) source() (marketdata.Provider, error) {
	cfg := a.Config
	switch cfg.Backtest.DataSource {
	case "store", "":
		return marketdata.NewStoreProvider(a.Bars, cfg.Storage.Market), nil
	case "alpaca":
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return nil, errors.New("alpaca data source requires api_key and api_secret")
		}
		return marketdata.NewAlpacaProvider(marketdata.AlpacaConfig{
			APIKey:             cfg.Alpaca.APIKey,
			APISecret:          cfg.Alpaca.APISecret,
			DataURL:            cfg.Alpaca.DataURL,
			Feed:               cfg.Alpaca.Feed,
			Adjustment:         cfg.Alpaca.Adjustment,
			RateLimitPerMinute: cfg.Alpaca.RateLimitPerMin,
		}, a.Log), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Backtest.DataSource)
	}
}

// ResultStore returns the archive as a store.ResultStore, or nil when no
// archive is configured.
func (a *App) ResultStore() store.ResultStore {
	if a.Archive == nil {
		return nil
	}
	return a.Archive
}

// Close releases the archive.
func (a *App) Close() error {
	if a.Archive == nil {
		return nil
	}
	return a.Archive.Close()
}
