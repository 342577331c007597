// Package analytics derives performance statistics from equity curves:
// return and risk ratios, trade statistics, benchmark-relative measures,
// swing-based trade extraction and per-regime attribution.
package analytics

import (
	"errors"
	"fmt"
	"math"

	"strategylab/internal/domain"
)

const (
	// TradingDaysPerYear is the annualisation convention for daily returns.
	TradingDaysPerYear = 252
	// TradingDaysPerMonth converts return observations into months.
	TradingDaysPerMonth = 21
	// DefaultRiskFreeRate is the annual risk-free rate used for excess returns.
	DefaultRiskFreeRate = 0.02
	// VaRConfidence is the confidence level of VaR95 and CVaR95.
	VaRConfidence = 0.95
)

var (
	// ErrInsufficientData is returned for curves with fewer than two points.
	ErrInsufficientData = errors.New("equity curve needs at least two points")
	// ErrNonPositiveEquity is returned when a return cannot be formed because
	// the previous equity value is zero or negative. Analyze reports it only
	// for a non-positive starting value; later ruin leaves ratios undefined.
	ErrNonPositiveEquity = errors.New("equity must stay positive to form returns")
)

// MetricsInput carries everything a metrics computation reads.
type MetricsInput struct {
	Curve []domain.EquityPoint
	// Trades is the authoritative ledger. When nil, trades are extracted
	// from Curve with ExtractTrades.
	Trades []domain.Trade
	// Benchmark is an optional reference curve aligned on exact timestamps.
	Benchmark []domain.EquityPoint
}

// Analyzer computes PerformanceMetrics. The zero value is not usable; use
// NewAnalyzer.
type Analyzer struct {
	riskFreeDaily float64
}

// NewAnalyzer creates an Analyzer using the given annual risk-free rate,
// converted to a daily rate over TradingDaysPerYear.
func NewAnalyzer(annualRiskFree float64) *Analyzer {
	return &Analyzer{riskFreeDaily: annualRiskFree / TradingDaysPerYear}
}

var defaultAnalyzer = NewAnalyzer(DefaultRiskFreeRate)

// ComputePerformanceMetrics computes the full metric set of a standalone
// curve, such as one exported from a live ledger. Trades are reconstructed
// with ExtractTrades. benchmark may be nil.
func ComputePerformanceMetrics(curve, benchmark []domain.EquityPoint) (domain.PerformanceMetrics, error) {
	return defaultAnalyzer.Analyze(MetricsInput{Curve: curve, Benchmark: benchmark})
}

// Analyze computes metrics for in.
func (a *Analyzer) Analyze(in MetricsInput) (domain.PerformanceMetrics, error) {
	var m domain.PerformanceMetrics

	returns, ruined, err := survivingReturns(in.Curve)
	if err != nil {
		return m, err
	}

	first, last := in.Curve[0].Equity, in.Curve[len(in.Curve)-1].Equity
	m.TotalReturn = last/first - 1
	m.AverageReturn = mean(returns)
	m.AnnualizedReturn = annualize(m.AverageReturn, TradingDaysPerYear)
	if ruined {
		m.AnnualizedReturn = -1
	}
	m.Volatility = sampleStd(returns) * math.Sqrt(TradingDaysPerYear)

	if dd := maxDrawdown(in.Curve); dd > 0 {
		m.MaxDrawdown = -dd
	}

	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - a.riskFreeDaily
	}
	m.SharpeRatio = sharpe(excess)
	m.SortinoRatio = sortino(excess)

	m.CalmarRatio = domain.Undefined()
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = domain.Ratio(m.AnnualizedReturn / math.Abs(m.MaxDrawdown))
	}

	m.VaR95, m.CVaR95 = valueAtRisk(returns, VaRConfidence)

	trades := in.Trades
	if trades == nil {
		trades = ExtractTrades(in.Curve)
	}
	applyTradeStats(&m, trades, len(in.Curve)-1)

	a.applyBenchmark(&m, in.Curve, in.Benchmark)
	if ruined {
		m.SharpeRatio = domain.Undefined()
		m.SortinoRatio = domain.Undefined()
		m.CalmarRatio = domain.Undefined()
		m.Beta = domain.Undefined()
		m.Alpha = domain.Undefined()
		m.InformationRatio = domain.Undefined()
	}
	return m, nil
}

// survivingReturns forms returns until equity first drops to zero or below.
// The return into that point is kept and ruined is set; no return can be
// formed from a non-positive base, so the rest of the curve is ignored. Only
// a non-positive starting value is an error.
func survivingReturns(curve []domain.EquityPoint) (returns []float64, ruined bool, err error) {
	if len(curve) < 2 {
		return nil, false, ErrInsufficientData
	}
	if e := curve[0].Equity; e <= 0 || math.IsNaN(e) {
		return nil, false, fmt.Errorf("%w: point 0 has equity %v", ErrNonPositiveEquity, e)
	}
	returns = make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 || math.IsNaN(prev) {
			return returns, true, nil
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	return returns, false, nil
}

// maxDrawdown returns the largest fractional decline from a running peak.
// It is recomputed from equity with the peak seeded at the first point and
// ignores the Drawdown field, so externally supplied curves need not carry
// one. Simulator curves agree because their warmup points equal the initial
// capital.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	var peak, worst float64
	for i, p := range curve {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func sharpe(excess []float64) domain.Ratio {
	std := sampleStd(excess)
	if std < zeroTol {
		return domain.Undefined()
	}
	return domain.Ratio(mean(excess) / std * math.Sqrt(TradingDaysPerYear))
}

// sortino uses the downside deviation sqrt(mean(min(excess,0)^2)) over the
// negative excess returns. It is undefined without negative excess returns
// and for constant series, whose dispersion gives no risk to scale by.
func sortino(excess []float64) domain.Ratio {
	if sampleStd(excess) < zeroTol {
		return domain.Undefined()
	}
	var ss float64
	var n int
	for _, x := range excess {
		if x < 0 {
			ss += x * x
			n++
		}
	}
	if n == 0 {
		return domain.Undefined()
	}
	dd := math.Sqrt(ss / float64(n))
	if dd < zeroTol {
		return domain.Undefined()
	}
	return domain.Ratio(mean(excess) / dd * math.Sqrt(TradingDaysPerYear))
}

// valueAtRisk returns historical VaR and CVaR at confidence as positive loss
// fractions. Both are 0 when the tail holds no losses.
func valueAtRisk(returns []float64, confidence float64) (varLoss, cvarLoss float64) {
	sorted := sortedCopy(returns)
	cutoff := percentile(sorted, 1-confidence)

	var tail []float64
	for _, r := range sorted {
		if r > cutoff {
			break
		}
		tail = append(tail, r)
	}
	if cutoff < 0 {
		varLoss = -cutoff
	}
	if t := mean(tail); t < 0 {
		cvarLoss = -t
	}
	return varLoss, cvarLoss
}

func applyTradeStats(m *domain.PerformanceMetrics, trades []domain.Trade, tradingDays int) {
	m.TotalTrades = len(trades)
	m.ProfitFactor = domain.Undefined()
	if len(trades) == 0 {
		return
	}

	var wins, losses int
	var grossWin, grossLoss float64
	var streak int
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
			streak = 0
		case t.PnL < 0:
			losses++
			grossLoss += t.PnL
			streak++
			if streak > m.MaxConsecutiveLosses {
				m.MaxConsecutiveLosses = streak
			}
		default:
			streak = 0
		}
	}

	n := float64(len(trades))
	m.WinRate = float64(wins) / n
	if wins > 0 {
		m.AverageWin = grossWin / float64(wins)
	}
	if losses > 0 {
		m.AverageLoss = grossLoss / float64(losses)
		m.ProfitFactor = domain.Ratio(grossWin / math.Abs(grossLoss))
	}
	if tradingDays > 0 {
		m.TradesPerMonth = n / (float64(tradingDays) / TradingDaysPerMonth)
	}
	m.AverageHoldingPeriod = float64(tradingDays) / n
}

// applyBenchmark fills the benchmark-relative fields from the returns of
// consecutive timestamps present in both curves. Fields stay undefined when
// fewer than two points align or the benchmark is not strictly positive.
func (a *Analyzer) applyBenchmark(m *domain.PerformanceMetrics, curve, benchmark []domain.EquityPoint) {
	m.Beta = domain.Undefined()
	m.Alpha = domain.Undefined()
	m.InformationRatio = domain.Undefined()
	m.BenchmarkAnnualizedReturn = domain.Undefined()
	if len(benchmark) == 0 {
		return
	}

	byTime := make(map[int64]float64, len(benchmark))
	for _, p := range benchmark {
		byTime[p.Timestamp.UnixNano()] = p.Equity
	}

	var strat, bench []float64
	prevS, prevB := math.NaN(), math.NaN()
	for _, p := range curve {
		b, ok := byTime[p.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		if !math.IsNaN(prevS) {
			if prevS <= 0 || prevB <= 0 {
				return
			}
			strat = append(strat, p.Equity/prevS-1)
			bench = append(bench, b/prevB-1)
		}
		prevS, prevB = p.Equity, b
	}
	if len(bench) == 0 {
		return
	}

	benchAnn := annualize(mean(bench), TradingDaysPerYear)
	m.BenchmarkAnnualizedReturn = domain.Ratio(benchAnn)

	if v := sampleStd(bench); v >= zeroTol {
		beta := sampleCov(strat, bench) / (v * v)
		m.Beta = domain.Ratio(beta)
		m.Alpha = domain.Ratio(m.AnnualizedReturn - beta*benchAnn)
	}

	active := make([]float64, len(strat))
	for i := range strat {
		active[i] = strat[i] - bench[i]
	}
	if std := sampleStd(active); std >= zeroTol {
		m.InformationRatio = domain.Ratio(mean(active) / std * math.Sqrt(TradingDaysPerYear))
	}
}

// MeanDefined averages the defined values, skipping undefined ones. The
// result is undefined when no value is defined.
func MeanDefined(values []domain.Ratio) domain.Ratio {
	var sum float64
	var n int
	for _, v := range values {
		if v.Defined() {
			sum += v.Float()
			n++
		}
	}
	if n == 0 {
		return domain.Undefined()
	}
	return domain.Ratio(sum / float64(n))
}
