// Package builtins provides the strategy implementations that ship with
// strategylab.
package builtins

import (
	"fmt"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*SMACross)(nil)
var _ strategy.BatchStrategy = (*SMACross)(nil)

// SMACrossID is the registry id of the SMA crossover strategy.
const SMACrossID = "sma-cross"

// SMACross implements a simple moving average crossover strategy. It
// signals enter-long when the short-period SMA crosses above the long-period
// SMA, and enter-short when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. It requires 1 <= short < long.
func NewSMACross(short, long int) (*SMACross, error) {
	if err := validatePeriods(short, long); err != nil {
		return nil, err
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return SMACrossID
}

// Warmup returns the long period: a cross at i needs both averages at i-1.
func (s *SMACross) Warmup() int {
	return s.longPeriod
}

// Signal evaluates the crossover at bar i using only bars[:i+1].
func (s *SMACross) Signal(bars []domain.Bar, i int) domain.SignalType {
	if i < 1 || i >= len(bars) {
		return domain.SignalNone
	}
	x := closes(bars[:i+1])
	fast := []float64{smaAt(x, i-1, s.shortPeriod), smaAt(x, i, s.shortPeriod)}
	slow := []float64{smaAt(x, i-1, s.longPeriod), smaAt(x, i, s.longPeriod)}
	return crossAt(fast, slow, 1)
}

// Signals evaluates every bar at once; Signals(bars)[i] == Signal(bars, i).
func (s *SMACross) Signals(bars []domain.Bar) []domain.SignalType {
	x := closes(bars)
	fast := SMA(x, s.shortPeriod)
	slow := SMA(x, s.longPeriod)
	out := make([]domain.SignalType, len(bars))
	for i := range out {
		out[i] = crossAt(fast, slow, i)
	}
	return out
}

func validatePeriods(short, long int) error {
	if short < 1 || long < 1 {
		return fmt.Errorf("periods must be >= 1, got short=%d long=%d", short, long)
	}
	if short >= long {
		return fmt.Errorf("short period %d must be less than long period %d", short, long)
	}
	return nil
}
