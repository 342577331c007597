package builtins

import (
	"math"

	"strategylab/internal/domain"
)

// SMA returns the simple moving average of x over period p, aligned to the
// input length. Indices with fewer than p observations are NaN.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = smaAt(x, i, p)
	}
	return out
}

// smaAt averages x[i-p+1..i]. Each window is summed afresh so the value at i
// does not depend on how many earlier indices were visited.
func smaAt(x []float64, i, p int) float64 {
	if i < p-1 || i >= len(x) {
		return math.NaN()
	}
	var sum float64
	for j := i - p + 1; j <= i; j++ {
		sum += x[j]
	}
	return sum / float64(p)
}

// EMA uses the standard 2/(p+1) smoothing seeded with SMA(p); NaN during
// warmup.
func EMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(x) < p {
		return out
	}

	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)

	k := 2.0 / float64(p+1)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// crossAt classifies the relation of fast and slow lines between i-1 and i.
// Any undefined operand yields no signal.
func crossAt(fast, slow []float64, i int) domain.SignalType {
	if i < 1 || i >= len(fast) || i >= len(slow) {
		return domain.SignalNone
	}
	fPrev, sPrev, fCur, sCur := fast[i-1], slow[i-1], fast[i], slow[i]
	if math.IsNaN(fPrev) || math.IsNaN(sPrev) || math.IsNaN(fCur) || math.IsNaN(sCur) {
		return domain.SignalNone
	}
	switch {
	case fPrev <= sPrev && fCur > sCur:
		return domain.SignalEnterLong
	case fPrev >= sPrev && fCur < sCur:
		return domain.SignalEnterShort
	default:
		return domain.SignalNone
	}
}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}
