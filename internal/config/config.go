package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for strategylab.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	Regime   RegimeConfig   `yaml:"regime"`
	Trading  TradingConfig  `yaml:"trading"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Market     string `yaml:"market"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
	// CORSOrigins lists origins allowed to call the HTTP API from a browser.
	// Empty disables CORS handling.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	Adjustment      string `yaml:"adjustment"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig controls backtest defaults and resource limits.
type BacktestConfig struct {
	// DataSource selects the bar provider: "store" (local Parquet) or "alpaca".
	DataSource     string  `yaml:"data_source"`
	Timeframe      string  `yaml:"timeframe"`
	InitialCapital float64 `yaml:"initial_capital"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	MaxWorkers     int     `yaml:"max_workers"`
	CacheSize      int     `yaml:"cache_size"`
	// BenchmarkTicker, when set, is fetched for beta/alpha/information ratio.
	BenchmarkTicker string `yaml:"benchmark_ticker"`
	// DetectRegimes enables per-condition attribution.
	DetectRegimes bool `yaml:"detect_regimes"`
}

// RegimeConfig tunes the local market-condition detector.
type RegimeConfig struct {
	Window         int     `yaml:"window"`
	TrendThreshold float64 `yaml:"trend_threshold"`
	HighVolatility float64 `yaml:"high_volatility"`
	LowVolatility  float64 `yaml:"low_volatility"`
}

// TradingConfig defines position sizing parameters.
type TradingConfig struct {
	MaxPositionPct float64 `yaml:"max_position_pct"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a configuration with every default filled in and
// environment overrides applied.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills unset fields with defaults and rejects values that are set
// but out of range.
func (c *Config) Validate() error {
	c.applyDefaults()

	switch c.Backtest.DataSource {
	case "store", "alpaca":
	default:
		return fmt.Errorf("config: backtest.data_source %q must be store or alpaca", c.Backtest.DataSource)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format %q must be json or text", c.Logging.Format)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("config: backtest.initial_capital must be positive, got %v", c.Backtest.InitialCapital)
	}
	if c.Trading.MaxPositionPct <= 0 || c.Trading.MaxPositionPct > 1 {
		return fmt.Errorf("config: trading.max_position_pct must be in (0, 1], got %v", c.Trading.MaxPositionPct)
	}
	if c.Backtest.MaxWorkers < 1 {
		return fmt.Errorf("config: backtest.max_workers must be at least 1, got %d", c.Backtest.MaxWorkers)
	}
	if c.Backtest.CacheSize < 0 {
		return fmt.Errorf("config: backtest.cache_size must not be negative, got %d", c.Backtest.CacheSize)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.Market == "" {
		c.Storage.Market = "us"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = "sip"
	}
	if c.Alpaca.Adjustment == "" {
		c.Alpaca.Adjustment = "all"
	}
	if c.Alpaca.RateLimitPerMin == 0 {
		c.Alpaca.RateLimitPerMin = 200
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Backtest.DataSource == "" {
		c.Backtest.DataSource = "store"
	}
	if c.Backtest.Timeframe == "" {
		c.Backtest.Timeframe = "1Day"
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = 100000
	}
	if c.Backtest.RiskFreeRate == 0 {
		c.Backtest.RiskFreeRate = 0.02
	}
	if c.Backtest.MaxWorkers == 0 {
		c.Backtest.MaxWorkers = 4
	}
	if c.Backtest.CacheSize == 0 {
		c.Backtest.CacheSize = 256
	}
	if c.Trading.MaxPositionPct == 0 {
		c.Trading.MaxPositionPct = 1
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("STRATEGYLAB_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backtest.MaxWorkers = n
		}
	}

	// Standard Alpaca env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
