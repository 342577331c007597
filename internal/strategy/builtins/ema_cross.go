package builtins

import (
	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*EMACross)(nil)
var _ strategy.BatchStrategy = (*EMACross)(nil)

// EMACrossID is the registry id of the EMA crossover strategy.
const EMACrossID = "ema-cross"

// EMACross is the exponential moving average variant of SMACross.
type EMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewEMACross creates an EMACross strategy. It requires 1 <= short < long.
func NewEMACross(short, long int) (*EMACross, error) {
	if err := validatePeriods(short, long); err != nil {
		return nil, err
	}
	return &EMACross{shortPeriod: short, longPeriod: long}, nil
}

// Name returns "ema-cross".
func (s *EMACross) Name() string { return EMACrossID }

// Warmup returns the long period.
func (s *EMACross) Warmup() int { return s.longPeriod }

// Signal recomputes both averages over bars[:i+1]. Prefer Signals when
// scanning a whole series.
func (s *EMACross) Signal(bars []domain.Bar, i int) domain.SignalType {
	if i < 1 || i >= len(bars) {
		return domain.SignalNone
	}
	x := closes(bars[:i+1])
	return crossAt(EMA(x, s.shortPeriod), EMA(x, s.longPeriod), i)
}

// Signals evaluates every bar at once.
func (s *EMACross) Signals(bars []domain.Bar) []domain.SignalType {
	x := closes(bars)
	fast := EMA(x, s.shortPeriod)
	slow := EMA(x, s.longPeriod)
	out := make([]domain.SignalType, len(bars))
	for i := range out {
		out[i] = crossAt(fast, slow, i)
	}
	return out
}
