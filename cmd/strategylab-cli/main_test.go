package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
)

func TestParseRange(t *testing.T) {
	got, err := parseRange("short", "5:20:5")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	want := []int{5, 10, 15, 20}
	if len(got) != len(want) {
		t.Fatalf("parseRange = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parseRange[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"5:20", "a:b:c", "20:5:1", "1:5:0"} {
		if _, err := parseRange("short", bad); err == nil {
			t.Errorf("parseRange(%q) returned nil error", bad)
		}
	}
}

func TestRenderResult(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	res := &domain.BacktestResult{
		StrategyID:     "sma-cross",
		Ticker:         "TEST",
		Params:         domain.Params{ShortPeriod: 2, LongPeriod: 4},
		StartDate:      day,
		EndDate:        day.AddDate(0, 0, 9),
		InitialCapital: 1000,
		FinalCapital:   1375,
		TotalReturn:    0.375,
		Trades: []domain.Trade{{
			EntryDate: day.AddDate(0, 0, 6), ExitDate: day.AddDate(0, 0, 9),
			EntryPrice: 8, ExitPrice: 11, Quantity: 125,
			Direction: domain.DirectionLong, PnL: 375, PnLPercentage: 0.375,
		}},
		Metrics: domain.PerformanceMetrics{
			SharpeRatio:  domain.Undefined(),
			SortinoRatio: domain.Undefined(),
			CalmarRatio:  domain.Undefined(),
			ProfitFactor: domain.Undefined(),
			Beta:         domain.Undefined(),
		},
	}

	var buf bytes.Buffer
	renderResult(&buf, res, true)
	out := buf.String()
	for _, want := range []string{"TEST", "1375.00", "+37.50%", "n/a", "2024-01-08"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Benchmark") {
		t.Error("report shows a benchmark section without a benchmark")
	}
}

func TestRenderBatchMarksBest(t *testing.T) {
	items := []backtest.BatchItem{
		{Request: backtest.Request{Ticker: "A"}, Result: &domain.BacktestResult{TotalReturn: 0.1}},
		{Request: backtest.Request{Ticker: "B"}, Err: errors.New("boom"), Error: "boom"},
	}
	summary := backtest.Summarize(items)

	var buf bytes.Buffer
	renderBatch(&buf, items, summary)
	out := buf.String()
	if !strings.Contains(out, "best") || !strings.Contains(out, "boom") {
		t.Errorf("batch report missing best marker or error:\n%s", out)
	}
}
