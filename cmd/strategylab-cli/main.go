package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"strategylab/internal/analytics"
	"strategylab/internal/app"
	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/store"
	"strategylab/internal/strategy/builtins"
	"strategylab/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: strategylab-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run         Backtest one strategy on one ticker\n")
		fmt.Fprintf(os.Stderr, "  sweep       Backtest a grid of short/long periods\n")
		fmt.Fprintf(os.Stderr, "  metrics     Compute performance metrics for an equity curve file\n")
		fmt.Fprintf(os.Stderr, "  strategies  List available strategies\n")
		fmt.Fprintf(os.Stderr, "  import      Import CSV bars into the parquet store\n")
		fmt.Fprintf(os.Stderr, "  results     List archived backtest results\n")
		fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\nRun 'strategylab-cli <command> -h' for command options.\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("strategylab-cli %s\n", version)
	case "run":
		err = runCmd(ctx, args)
	case "sweep":
		err = sweepCmd(ctx, args)
	case "metrics":
		err = metricsCmd(args)
	case "strategies":
		err = strategiesCmd(args)
	case "import":
		err = importCmd(ctx, args)
	case "results":
		err = resultsCmd(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Shared setup
// ---------------------------------------------------------------------------

func defaultConfigPath() string {
	if p := os.Getenv("STRATEGYLAB_CONFIG"); p != "" {
		return p
	}
	return "config/strategylab.yaml"
}

// loadConfig reads path, falling back to built-in defaults when the file
// does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

func newApp(cfgPath string) (*app.App, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)
	return app.New(cfg, logger)
}

func parseDay(name, s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("-%s %q: want YYYY-MM-DD", name, s)
	}
	return t, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	strategyID := fs.String("strategy", builtins.SMACrossID, "strategy id")
	ticker := fs.String("ticker", "", "ticker symbol (required)")
	short := fs.Int("short", 10, "short period")
	long := fs.Int("long", 30, "long period")
	start := fs.String("start", time.Now().AddDate(-1, 0, 0).Format("2006-01-02"), "first day (YYYY-MM-DD)")
	end := fs.String("end", time.Now().Format("2006-01-02"), "last day (YYYY-MM-DD)")
	capital := fs.Float64("capital", 0, "initial capital (0 uses the configured default)")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	exportDir := fs.String("export-dir", "", "write equity.parquet and trades.parquet to this directory")
	showTrades := fs.Bool("trades", true, "list closed trades")
	fs.Parse(args)

	if *ticker == "" {
		return errors.New("-ticker is required")
	}
	from, err := parseDay("start", *start)
	if err != nil {
		return err
	}
	to, err := parseDay("end", *end)
	if err != nil {
		return err
	}

	a, err := newApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if *capital == 0 {
		*capital = a.Config.Backtest.InitialCapital
	}
	res, err := a.Backtester.RunBacktest(ctx, *strategyID, *ticker,
		domain.Params{ShortPeriod: *short, LongPeriod: *long}, from, to, *capital)
	if err != nil {
		return err
	}

	if *exportDir != "" {
		if err := export(*exportDir, res); err != nil {
			return err
		}
	}
	if *asJSON {
		return writeJSON(res)
	}
	renderResult(os.Stdout, res, *showTrades)
	if *exportDir != "" {
		fmt.Println(dimStyle.Render("exported to " + *exportDir))
	}
	return nil
}

func export(dir string, res *domain.BacktestResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	if err := store.WriteEquityCurve(filepath.Join(dir, "equity.parquet"), res.EquityCurve); err != nil {
		return fmt.Errorf("exporting equity curve: %w", err)
	}
	if err := store.WriteTrades(filepath.Join(dir, "trades.parquet"), res.Trades); err != nil {
		return fmt.Errorf("exporting trades: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// sweep
// ---------------------------------------------------------------------------

// parseRange parses "from:to:step" into the inclusive list of values.
func parseRange(name, s string) ([]int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("-%s %q: want from:to:step", name, s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("-%s %q: %w", name, s, err)
		}
		n[i] = v
	}
	from, to, step := n[0], n[1], n[2]
	if step <= 0 || from > to {
		return nil, fmt.Errorf("-%s %q: need from <= to and step > 0", name, s)
	}
	var out []int
	for v := from; v <= to; v += step {
		out = append(out, v)
	}
	return out, nil
}

func sweepCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	strategyID := fs.String("strategy", builtins.SMACrossID, "strategy id")
	tickers := fs.String("tickers", "", "comma-separated ticker symbols (required)")
	shortRange := fs.String("short", "5:20:5", "short periods as from:to:step")
	longRange := fs.String("long", "20:60:10", "long periods as from:to:step")
	start := fs.String("start", time.Now().AddDate(-1, 0, 0).Format("2006-01-02"), "first day (YYYY-MM-DD)")
	end := fs.String("end", time.Now().Format("2006-01-02"), "last day (YYYY-MM-DD)")
	capital := fs.Float64("capital", 0, "initial capital (0 uses the configured default)")
	asJSON := fs.Bool("json", false, "print the batch as JSON")
	fs.Parse(args)

	if *tickers == "" {
		return errors.New("-tickers is required")
	}
	shorts, err := parseRange("short", *shortRange)
	if err != nil {
		return err
	}
	longs, err := parseRange("long", *longRange)
	if err != nil {
		return err
	}
	from, err := parseDay("start", *start)
	if err != nil {
		return err
	}
	to, err := parseDay("end", *end)
	if err != nil {
		return err
	}

	a, err := newApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if *capital == 0 {
		*capital = a.Config.Backtest.InitialCapital
	}

	var reqs []backtest.Request
	for _, t := range strings.Split(*tickers, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		for _, s := range shorts {
			for _, l := range longs {
				if s >= l {
					continue
				}
				reqs = append(reqs, backtest.Request{
					StrategyID:     *strategyID,
					Ticker:         t,
					Params:         domain.Params{ShortPeriod: s, LongPeriod: l},
					Start:          from,
					End:            to,
					InitialCapital: *capital,
				})
			}
		}
	}
	if len(reqs) == 0 {
		return errors.New("sweep grid is empty: every short period is >= every long period")
	}

	items, summary, err := a.Backtester.RunBatch(ctx, reqs)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(struct {
			Items   []backtest.BatchItem  `json:"items"`
			Summary backtest.BatchSummary `json:"summary"`
		}{items, summary})
	}
	renderBatch(os.Stdout, items, summary)
	return nil
}

// ---------------------------------------------------------------------------
// metrics
// ---------------------------------------------------------------------------

// readCurve loads an equity curve from a .csv or .parquet file.
func readCurve(path string) ([]domain.EquityPoint, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return store.ReadEquityCurve(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return store.ReadEquityCSV(f)
	default:
		return nil, fmt.Errorf("%s: unsupported curve format (want .csv or .parquet)", path)
	}
}

func metricsCmd(args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	curvePath := fs.String("curve", "", "equity curve file, .csv or .parquet (required)")
	benchPath := fs.String("benchmark", "", "optional benchmark curve file")
	asJSON := fs.Bool("json", false, "print metrics as JSON")
	fs.Parse(args)

	if *curvePath == "" {
		return errors.New("-curve is required")
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	curve, err := readCurve(*curvePath)
	if err != nil {
		return err
	}
	var bench []domain.EquityPoint
	if *benchPath != "" {
		if bench, err = readCurve(*benchPath); err != nil {
			return err
		}
	}

	trades := analytics.ExtractTrades(curve)
	m, err := analytics.NewAnalyzer(cfg.Backtest.RiskFreeRate).Analyze(analytics.MetricsInput{
		Curve:     curve,
		Trades:    trades,
		Benchmark: bench,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(struct {
			Metrics domain.PerformanceMetrics `json:"metrics"`
			Trades  []domain.Trade            `json:"trades"`
		}{m, trades})
	}
	renderMetrics(os.Stdout, m, len(bench) > 0)
	return nil
}

// ---------------------------------------------------------------------------
// strategies
// ---------------------------------------------------------------------------

func strategiesCmd(args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	fs.Parse(args)
	for _, id := range builtins.NewRegistry().List() {
		fmt.Println(id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// import
// ---------------------------------------------------------------------------

func importCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	file := fs.String("file", "", "CSV file with date and close columns (required)")
	symbol := fs.String("symbol", "", "symbol the bars belong to (defaults to the file name)")
	market := fs.String("market", "", "market directory (defaults to storage.market)")
	timeframe := fs.String("timeframe", "", "bar timeframe (defaults to backtest.timeframe)")
	fs.Parse(args)

	if *file == "" {
		return errors.New("-file is required")
	}
	if *symbol == "" {
		*symbol = strings.TrimSuffix(filepath.Base(*file), filepath.Ext(*file))
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *market == "" {
		*market = cfg.Storage.Market
	}
	if *timeframe == "" {
		*timeframe = cfg.Backtest.Timeframe
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	bars, err := store.ReadBarsCSV(f, *symbol)
	if err != nil {
		return fmt.Errorf("%s: %w", *file, err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("%s: no bars", *file)
	}

	logger := util.NewLogger(cfg.Logging.Level, "text")
	bs := store.NewParquetStore(cfg.Storage.DataDir)
	if err := bs.WriteBars(ctx, *market, domain.Timeframe(*timeframe), bars); err != nil {
		return err
	}
	logger.Info("imported bars",
		"symbol", strings.ToUpper(*symbol),
		"bars", len(bars),
		"from", bars[0].Timestamp.Format("2006-01-02"),
		"to", bars[len(bars)-1].Timestamp.Format("2006-01-02"),
		"dataDir", cfg.Storage.DataDir,
	)
	return nil
}

// ---------------------------------------------------------------------------
// results
// ---------------------------------------------------------------------------

func resultsCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	strategyID := fs.String("strategy", "", "filter by strategy id")
	ticker := fs.String("ticker", "", "filter by ticker")
	limit := fs.Int("limit", 20, "maximum rows")
	asJSON := fs.Bool("json", false, "print results as JSON")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is not configured; no archive to list")
	}
	archive, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	rows, err := archive.ListResults(ctx, store.ResultFilter{
		StrategyID: *strategyID,
		Ticker:     strings.ToUpper(*ticker),
		Limit:      *limit,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(rows)
	}
	renderResults(os.Stdout, rows)
	return nil
}

