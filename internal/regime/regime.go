// Package regime estimates market-condition periods from price history.
package regime

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"strategylab/internal/analytics"
	"strategylab/internal/domain"
	"strategylab/internal/marketdata"
)

// Provider returns the ordered, non-overlapping condition periods of a
// ticker over a date range.
type Provider interface {
	Detect(ctx context.Context, ticker string, start, end time.Time) ([]domain.MarketConditionPeriod, error)
}

// Config tunes the classification thresholds.
type Config struct {
	// Window is the number of bars per classified block.
	Window int `yaml:"window"`
	// TrendThreshold is the block return beyond which a block is bull or bear.
	TrendThreshold float64 `yaml:"trend_threshold"`
	// HighVolatility and LowVolatility bound annualised volatility.
	HighVolatility float64 `yaml:"high_volatility"`
	LowVolatility  float64 `yaml:"low_volatility"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		Window:         20,
		TrendThreshold: 0.03,
		HighVolatility: 0.35,
		LowVolatility:  0.10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window < 2 {
		c.Window = d.Window
	}
	if c.TrendThreshold <= 0 {
		c.TrendThreshold = d.TrendThreshold
	}
	if c.HighVolatility <= 0 {
		c.HighVolatility = d.HighVolatility
	}
	if c.LowVolatility <= 0 || c.LowVolatility >= c.HighVolatility {
		c.LowVolatility = math.Min(d.LowVolatility, c.HighVolatility/2)
	}
	return c
}

// Compile-time interface check.
var _ Provider = (*Detector)(nil)

// Detector classifies daily bars fetched from a market data provider.
type Detector struct {
	bars marketdata.Provider
	cfg  Config
	log  *slog.Logger
}

// NewDetector creates a Detector reading daily bars from bars.
func NewDetector(bars marketdata.Provider, cfg Config, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		bars: bars,
		cfg:  cfg.withDefaults(),
		log:  log.With("component", "regime"),
	}
}

// Detect fetches daily bars for ticker and classifies them.
func (d *Detector) Detect(ctx context.Context, ticker string, start, end time.Time) ([]domain.MarketConditionPeriod, error) {
	series, err := d.bars.GetBars(ctx, ticker, start, end, domain.TimeframeDaily)
	if err != nil {
		return nil, fmt.Errorf("fetching bars for %s: %w", ticker, err)
	}
	periods := Classify(series.View(), d.cfg)
	d.log.Debug("conditions detected", "ticker", ticker, "periods", len(periods))
	return periods, nil
}

// Classify splits bars into consecutive blocks of cfg.Window bars, labels each
// block and merges neighbouring blocks with the same label. A trailing block
// shorter than two bars is folded into the previous one. Volatility takes
// precedence over trend, and a flat block is low_volatility only when it is
// also quiet.
func Classify(bars []domain.Bar, cfg Config) []domain.MarketConditionPeriod {
	cfg = cfg.withDefaults()
	if len(bars) < 2 {
		return nil
	}

	var out []domain.MarketConditionPeriod
	var weights []int
	for lo := 0; lo < len(bars); lo += cfg.Window {
		hi := min(lo+cfg.Window, len(bars))
		if hi-lo < 2 {
			// Fold the remainder into the last period.
			out[len(out)-1].EndDate = bars[len(bars)-1].Timestamp
			break
		}
		cond, conf := classifyBlock(bars[lo:hi], cfg)
		p := domain.MarketConditionPeriod{
			Condition:  cond,
			StartDate:  bars[lo].Timestamp,
			EndDate:    bars[hi-1].Timestamp,
			Confidence: conf,
		}
		n := hi - lo
		if k := len(out) - 1; k >= 0 && out[k].Condition == cond {
			w := weights[k]
			out[k].EndDate = p.EndDate
			out[k].Confidence = (out[k].Confidence*float64(w) + conf*float64(n)) / float64(w+n)
			weights[k] = w + n
			continue
		}
		out = append(out, p)
		weights = append(weights, n)
	}
	return out
}

func classifyBlock(block []domain.Bar, cfg Config) (domain.MarketCondition, float64) {
	returns := make([]float64, len(block)-1)
	for i := 1; i < len(block); i++ {
		returns[i-1] = block[i].Close/block[i-1].Close - 1
	}
	vol := analytics.SampleStd(returns) * math.Sqrt(analytics.TradingDaysPerYear)
	trend := block[len(block)-1].Close/block[0].Close - 1

	switch {
	case vol >= cfg.HighVolatility:
		return domain.ConditionVolatile, clamp01(vol / (2 * cfg.HighVolatility))
	case trend >= cfg.TrendThreshold:
		return domain.ConditionBull, clamp01(trend / (2 * cfg.TrendThreshold))
	case trend <= -cfg.TrendThreshold:
		return domain.ConditionBear, clamp01(-trend / (2 * cfg.TrendThreshold))
	case vol <= cfg.LowVolatility:
		return domain.ConditionLowVolatility, clamp01(1 - vol/cfg.LowVolatility/2)
	default:
		return domain.ConditionSideways, clamp01(1 - math.Abs(trend)/cfg.TrendThreshold)
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
