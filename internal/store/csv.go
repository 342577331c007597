package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"strategylab/internal/domain"
)

// newCSVReader decodes UTF-8 or BOM-marked UTF-16 input, as produced by
// spreadsheet exports.
func newCSVReader(r io.Reader) *csv.Reader {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// csvColumns maps normalised header names to column indexes.
type csvColumns map[string]int

func readHeader(cr *csv.Reader) (csvColumns, error) {
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", ErrInvalidInput)
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(csvColumns, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
		cols[name] = i
	}
	return cols, nil
}

// find returns the index of the first present alias, or -1.
func (c csvColumns) find(aliases ...string) int {
	for _, a := range aliases {
		if i, ok := c[a]; ok {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

var timeLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
}

func parseCSVTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func parseFloatField(rec []string, i int, name string, line int) (float64, error) {
	s := field(rec, i)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d: %s %q", ErrInvalidInput, line, name, s)
	}
	return v, nil
}

// ReadBarsCSV parses bars for symbol from CSV with a header row. The date
// and close columns are required; open, high, low, volume and adj_close are
// optional. Bars are returned oldest first.
func ReadBarsCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := newCSVReader(r)
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	iDate := cols.find("date", "timestamp", "time", "datetime")
	iClose := cols.find("close", "close_price")
	if iDate < 0 || iClose < 0 {
		return nil, fmt.Errorf("%w: csv needs date and close columns", ErrInvalidInput)
	}
	iOpen, iHigh, iLow := cols.find("open"), cols.find("high"), cols.find("low")
	iVolume := cols.find("volume", "vol")
	iAdj := cols.find("adj_close", "adjclose", "adjusted_close")

	symbol = strings.ToUpper(symbol)
	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		if len(rec) == 1 && field(rec, 0) == "" {
			continue
		}

		ts, err := parseCSVTime(field(rec, iDate))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, line, err)
		}
		bar := domain.Bar{Symbol: symbol, Timestamp: ts}
		if bar.Close, err = parseFloatField(rec, iClose, "close", line); err != nil {
			return nil, err
		}
		if bar.Open, err = parseFloatField(rec, iOpen, "open", line); err != nil {
			return nil, err
		}
		if bar.High, err = parseFloatField(rec, iHigh, "high", line); err != nil {
			return nil, err
		}
		if bar.Low, err = parseFloatField(rec, iLow, "low", line); err != nil {
			return nil, err
		}
		if bar.AdjClose, err = parseFloatField(rec, iAdj, "adj_close", line); err != nil {
			return nil, err
		}
		vol, err := parseFloatField(rec, iVolume, "volume", line)
		if err != nil {
			return nil, err
		}
		bar.Volume = int64(vol)
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// ReadEquityCSV parses an equity curve from CSV with timestamp and equity
// columns. Drawdown is recomputed from the equity values.
func ReadEquityCSV(r io.Reader) ([]domain.EquityPoint, error) {
	cr := newCSVReader(r)
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	iTime := cols.find("timestamp", "date", "time", "datetime")
	iEquity := cols.find("equity", "value", "portfolio_value", "balance")
	if iTime < 0 || iEquity < 0 {
		return nil, fmt.Errorf("%w: csv needs timestamp and equity columns", ErrInvalidInput)
	}

	var curve []domain.EquityPoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		if len(rec) == 1 && field(rec, 0) == "" {
			continue
		}
		ts, err := parseCSVTime(field(rec, iTime))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, line, err)
		}
		eq, err := parseFloatField(rec, iEquity, "equity", line)
		if err != nil {
			return nil, err
		}
		curve = append(curve, domain.EquityPoint{Timestamp: ts, Equity: eq})
	}

	sort.SliceStable(curve, func(i, j int) bool { return curve[i].Timestamp.Before(curve[j].Timestamp) })
	peak := 0.0
	for i := range curve {
		if curve[i].Equity > peak {
			peak = curve[i].Equity
		}
		if peak > 0 {
			curve[i].Drawdown = (peak - curve[i].Equity) / peak
		}
	}
	return curve, nil
}
