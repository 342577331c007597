package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	AdjClose   float64 `parquet:"adj_close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// EquityRecord is the Parquet schema for an exported equity curve.
type EquityRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Equity    float64 `parquet:"equity"`
	Drawdown  float64 `parquet:"drawdown"`
}

// TradeRecord is the Parquet schema for an exported trade ledger.
type TradeRecord struct {
	EntryDate         int64   `parquet:"entry_date,timestamp(millisecond)"`
	ExitDate          int64   `parquet:"exit_date,timestamp(millisecond)"`
	Direction         string  `parquet:"direction"`
	EntryPrice        float64 `parquet:"entry_price"`
	ExitPrice         float64 `parquet:"exit_price"`
	Quantity          int64   `parquet:"quantity"`
	PnL               float64 `parquet:"pnl"`
	PnLPercentage     float64 `parquet:"pnl_percentage"`
	HoldingPeriodDays float64 `parquet:"holding_period_days"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/<timeframe>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market string, tf domain.Timeframe, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		if b.Symbol == "" {
			return fmt.Errorf("%w: bar at %s has no symbol", ErrInvalidInput, b.Timestamp.Format(time.RFC3339))
		}
		ts := b.Timestamp.UTC()
		k := key{symbol: strings.ToUpper(b.Symbol), year: ts.Year()}
		adj := b.AdjClose
		if adj == 0 {
			adj = b.Close
		}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  ts.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			AdjClose:   adj,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, tf, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol, market string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.barPath(symbol, market, tf, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			// No file for this year.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				AdjClose:   r.AdjClose,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string, tf domain.Timeframe) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, timeframeDir(tf))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Result exports
// ---------------------------------------------------------------------------

// WriteEquityCurve writes curve to a Parquet file at path, creating parent
// directories as needed.
func WriteEquityCurve(path string, curve []domain.EquityPoint) error {
	records := make([]EquityRecord, len(curve))
	for i, p := range curve {
		records[i] = EquityRecord{
			Timestamp: p.Timestamp.UnixMilli(),
			Equity:    p.Equity,
			Drawdown:  p.Drawdown,
		}
	}
	return writeParquetFile(path, records)
}

// ReadEquityCurve reads a curve written by WriteEquityCurve.
func ReadEquityCurve(path string) ([]domain.EquityPoint, error) {
	records, err := readParquetFile[EquityRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading equity curve %s: %w", path, err)
	}
	curve := make([]domain.EquityPoint, len(records))
	for i, r := range records {
		curve[i] = domain.EquityPoint{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Equity:    r.Equity,
			Drawdown:  r.Drawdown,
		}
	}
	return curve, nil
}

// WriteTrades writes a trade ledger to a Parquet file at path.
func WriteTrades(path string, trades []domain.Trade) error {
	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = TradeRecord{
			EntryDate:         t.EntryDate.UnixMilli(),
			ExitDate:          t.ExitDate.UnixMilli(),
			Direction:         string(t.Direction),
			EntryPrice:        t.EntryPrice,
			ExitPrice:         t.ExitPrice,
			Quantity:          t.Quantity,
			PnL:               t.PnL,
			PnLPercentage:     t.PnLPercentage,
			HoldingPeriodDays: t.HoldingPeriodDays,
		}
	}
	return writeParquetFile(path, records)
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/<timeframe>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, tf domain.Timeframe, year int) string {
	return filepath.Join(s.DataDir, market, timeframeDir(tf), strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// timeframeDir maps a timeframe to its directory name; daily bars keep the
// historical "daily" directory.
func timeframeDir(tf domain.Timeframe) string {
	if tf == "" || tf == domain.TimeframeDaily {
		return "daily"
	}
	return strings.ToLower(string(tf))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
