package backtest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"strategylab/internal/analytics"
	"strategylab/internal/domain"
)

// BatchItem is the outcome of one request in a batch. Exactly one of
// Result and Err is set.
type BatchItem struct {
	Request Request                `json:"request"`
	Result  *domain.BacktestResult `json:"result,omitempty"`
	Err     error                  `json:"-"`
	Error   string                 `json:"error,omitempty"`
}

// BatchSummary aggregates the successful runs of a batch. Undefined ratios
// are left out of the averages.
type BatchSummary struct {
	Runs             int          `json:"runs"`
	Succeeded        int          `json:"succeeded"`
	Failed           int          `json:"failed"`
	MeanTotalReturn  domain.Ratio `json:"mean_total_return"`
	MeanSharpe       domain.Ratio `json:"mean_sharpe"`
	MeanSortino      domain.Ratio `json:"mean_sortino"`
	MeanMaxDrawdown  domain.Ratio `json:"mean_max_drawdown"`
	MeanProfitFactor domain.Ratio `json:"mean_profit_factor"`
	// Best is the index of the run with the highest total return, or -1.
	Best int `json:"best"`
}

// RunBatch executes reqs concurrently with at most MaxWorkers in flight.
// A failed request does not affect the others. Items are returned in
// request order. The error is non-nil only when ctx was cancelled.
func (b *Backtester) RunBatch(ctx context.Context, reqs []Request) ([]BatchItem, BatchSummary, error) {
	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := range reqs {
		g.Go(func() error {
			item := BatchItem{Request: reqs[i]}
			if err := ctx.Err(); err != nil {
				item.Err = err
			} else {
				item.Result, item.Err = b.Run(ctx, reqs[i])
			}
			if item.Err != nil {
				item.Error = item.Err.Error()
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	b.metrics.RecordBatch(len(reqs))
	summary := Summarize(items)
	b.log.Info("batch complete", "runs", summary.Runs, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return items, summary, ctx.Err()
}

// Summarize aggregates batch items.
func Summarize(items []BatchItem) BatchSummary {
	s := BatchSummary{Runs: len(items), Best: -1}

	var totals, sharpes, sortinos, drawdowns, factors []domain.Ratio
	best := 0.0
	for i, it := range items {
		if it.Result == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		m := it.Result.Metrics
		totals = append(totals, domain.Ratio(it.Result.TotalReturn))
		sharpes = append(sharpes, m.SharpeRatio)
		sortinos = append(sortinos, m.SortinoRatio)
		drawdowns = append(drawdowns, domain.Ratio(m.MaxDrawdown))
		factors = append(factors, m.ProfitFactor)

		if s.Best < 0 || it.Result.TotalReturn > best {
			s.Best = i
			best = it.Result.TotalReturn
		}
	}

	s.MeanTotalReturn = analytics.MeanDefined(totals)
	s.MeanSharpe = analytics.MeanDefined(sharpes)
	s.MeanSortino = analytics.MeanDefined(sortinos)
	s.MeanMaxDrawdown = analytics.MeanDefined(drawdowns)
	s.MeanProfitFactor = analytics.MeanDefined(factors)
	return s
}
