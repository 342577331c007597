package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategylab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "STRATEGYLAB_MAX_WORKERS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/strategylab/data"
  sqlite_path: "/tmp/strategylab/results.db"
server:
  host: "127.0.0.1"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "iex"
logging:
  level: "debug"
  format: "text"
backtest:
  data_source: "alpaca"
  initial_capital: 50000
  max_workers: 8
  cache_size: 32
  benchmark_ticker: "SPY"
  detect_regimes: true
regime:
  window: 10
trading:
  max_position_pct: 0.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/strategylab/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/strategylab/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/strategylab/results.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/strategylab/results.db")
	}

	// -- Server --
	if cfg.Server.Port != 8081 || cfg.Server.GRPCPort != 9091 {
		t.Errorf("Server ports = %d/%d, want 8081/9091", cfg.Server.Port, cfg.Server.GRPCPort)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca = %+v, want test-key on iex", cfg.Alpaca)
	}
	if cfg.Alpaca.Adjustment != "all" {
		t.Errorf("Alpaca.Adjustment = %q, want default %q", cfg.Alpaca.Adjustment, "all")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}

	// -- Backtest --
	if cfg.Backtest.DataSource != "alpaca" {
		t.Errorf("Backtest.DataSource = %q, want %q", cfg.Backtest.DataSource, "alpaca")
	}
	if cfg.Backtest.InitialCapital != 50000 {
		t.Errorf("Backtest.InitialCapital = %v, want 50000", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.MaxWorkers != 8 || cfg.Backtest.CacheSize != 32 {
		t.Errorf("Backtest workers/cache = %d/%d, want 8/32", cfg.Backtest.MaxWorkers, cfg.Backtest.CacheSize)
	}
	if cfg.Backtest.RiskFreeRate != 0.02 {
		t.Errorf("Backtest.RiskFreeRate = %v, want default 0.02", cfg.Backtest.RiskFreeRate)
	}
	if cfg.Backtest.BenchmarkTicker != "SPY" || !cfg.Backtest.DetectRegimes {
		t.Errorf("Backtest benchmark/regimes = %q/%v, want SPY/true", cfg.Backtest.BenchmarkTicker, cfg.Backtest.DetectRegimes)
	}
	if cfg.Regime.Window != 10 {
		t.Errorf("Regime.Window = %d, want 10", cfg.Regime.Window)
	}

	// -- Trading --
	if cfg.Trading.MaxPositionPct != 0.5 {
		t.Errorf("Trading.MaxPositionPct = %f, want %f", cfg.Trading.MaxPositionPct, 0.5)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Backtest.DataSource != "store" {
		t.Errorf("Backtest.DataSource = %q, want %q", cfg.Backtest.DataSource, "store")
	}
	if cfg.Backtest.Timeframe != "1Day" {
		t.Errorf("Backtest.Timeframe = %q, want %q", cfg.Backtest.Timeframe, "1Day")
	}
	if cfg.Backtest.InitialCapital != 100000 {
		t.Errorf("Backtest.InitialCapital = %v, want 100000", cfg.Backtest.InitialCapital)
	}
	if cfg.Trading.MaxPositionPct != 1 {
		t.Errorf("Trading.MaxPositionPct = %v, want 1", cfg.Trading.MaxPositionPct)
	}
	if cfg.Server.Port != 8080 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("Server ports = %d/%d, want 8080/9090", cfg.Server.Port, cfg.Server.GRPCPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("STRATEGYLAB_MAX_WORKERS", "12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Backtest.MaxWorkers != 12 {
		t.Errorf("Backtest.MaxWorkers = %d, want 12 (env override)", cfg.Backtest.MaxWorkers)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"data source":  "backtest:\n  data_source: ftp\n",
		"log format":   "logging:\n  format: xml\n",
		"capital":      "backtest:\n  initial_capital: -5\n",
		"position pct": "trading:\n  max_position_pct: 1.5\n",
		"workers":      "backtest:\n  max_workers: -1\n",
	}
	for name, content := range cases {
		_, err := Load(writeConfig(t, content))
		if err == nil {
			t.Errorf("%s: Load() returned nil error", name)
			continue
		}
		if !strings.HasPrefix(err.Error(), "config:") {
			t.Errorf("%s: error %q lacks config prefix", name, err)
		}
	}
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}
