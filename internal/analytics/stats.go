package analytics

import (
	"math"
	"sort"
)

// zeroTol is the magnitude below which a dispersion is treated as zero.
// Constant return series can leave rounding residue of order 1e-20 in a
// sample deviation.
const zeroTol = 1e-12

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd returns the n-1 standard deviation, or 0 for fewer than two
// observations.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// sampleCov returns the n-1 covariance of two equal-length series.
func sampleCov(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var s float64
	for i := range xs {
		s += (xs[i] - mx) * (ys[i] - my)
	}
	return s / float64(len(xs)-1)
}

// percentile interpolates linearly between the closest ranks of a sorted
// slice. p is in [0, 1].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// annualize compounds an average per-period return over a year.
func annualize(avg float64, periodsPerYear int) float64 {
	return math.Pow(1+avg, float64(periodsPerYear)) - 1
}

// Mean returns the arithmetic mean of xs, or NaN when xs is empty.
func Mean(xs []float64) float64 { return mean(xs) }

// SampleStd returns the sample standard deviation of xs, or 0 for fewer
// than two observations.
func SampleStd(xs []float64) float64 { return sampleStd(xs) }
