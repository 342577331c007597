package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSeries is returned when bars cannot form a valid BarSeries.
var ErrInvalidSeries = errors.New("invalid bar series")

// BarSeries is an immutable, strictly time-ordered sequence of bars for one
// instrument and timeframe. Gaps between timestamps are allowed: each bar is
// one simulation step and dates are never re-aligned or filled.
type BarSeries struct {
	ticker    string
	timeframe Timeframe
	bars      []Bar
}

// NewBarSeries validates bars and returns a series owning a private copy.
// Bars must be non-empty, strictly increasing by timestamp and carry a
// finite positive close.
func NewBarSeries(ticker string, timeframe Timeframe, bars []Bar) (*BarSeries, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s has no bars", ErrInvalidSeries, ticker)
	}
	for i := range bars {
		if c := bars[i].Close; c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: %s bar %d has close %v",
				ErrInvalidSeries, ticker, i, c)
		}
		if i > 0 && !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: %s bar %d at %s is not after %s",
				ErrInvalidSeries, ticker, i,
				bars[i].Timestamp.Format("2006-01-02T15:04:05"),
				bars[i-1].Timestamp.Format("2006-01-02T15:04:05"))
		}
	}

	owned := make([]Bar, len(bars))
	copy(owned, bars)
	return &BarSeries{ticker: ticker, timeframe: timeframe, bars: owned}, nil
}

// Ticker returns the instrument symbol.
func (s *BarSeries) Ticker() string { return s.ticker }

// Timeframe returns the bar interval.
func (s *BarSeries) Timeframe() Timeframe { return s.timeframe }

// Len returns the number of bars.
func (s *BarSeries) Len() int { return len(s.bars) }

// At returns bar i.
func (s *BarSeries) At(i int) Bar { return s.bars[i] }

// Bars returns a copy of the bars.
func (s *BarSeries) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// View returns the backing slice without copying. Callers must not modify it.
func (s *BarSeries) View() []Bar { return s.bars }

// Closes returns the closing prices in order.
func (s *BarSeries) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i := range s.bars {
		out[i] = s.bars[i].Close
	}
	return out
}
