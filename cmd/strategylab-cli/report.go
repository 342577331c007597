package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/store"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(24)
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bestStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
)

// signed colours v by sign.
func signed(v float64, text string) string {
	switch {
	case v > 0:
		return gainStyle.Render(text)
	case v < 0:
		return lossStyle.Render(text)
	default:
		return valueStyle.Render(text)
	}
}

func pct(v float64) string { return fmt.Sprintf("%+.2f%%", v*100) }

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

func ratio(r domain.Ratio) string {
	if !r.Defined() {
		return dimStyle.Render(r.String())
	}
	return signed(r.Float(), r.String())
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label), value)
}

func renderResult(w io.Writer, res *domain.BacktestResult, showTrades bool) {
	title := fmt.Sprintf("%s  %s  %d/%d  %s → %s",
		res.Ticker, res.StrategyID, res.Params.ShortPeriod, res.Params.LongPeriod,
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"))
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w)

	fmt.Fprintln(w, sectionStyle.Render("Capital"))
	row(w, "initial", valueStyle.Render(money(res.InitialCapital)))
	row(w, "final", signed(res.FinalCapital-res.InitialCapital, money(res.FinalCapital)))
	row(w, "total return", signed(res.TotalReturn, pct(res.TotalReturn)))
	row(w, "annualized return", signed(res.AnnualizedReturn, pct(res.AnnualizedReturn)))
	fmt.Fprintln(w)

	renderMetrics(w, res.Metrics, res.Metrics.Beta.Defined())

	if len(res.Regimes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Market conditions"))
		for _, rp := range res.Regimes {
			label := fmt.Sprintf("%s %s..%s", rp.Period.Condition,
				rp.Period.StartDate.Format("01-02"), rp.Period.EndDate.Format("01-02"))
			row(w, label, signed(rp.Return, pct(rp.Return))+dimStyle.Render(fmt.Sprintf("  (%d points)", rp.Points)))
		}
	}

	if showTrades && len(res.Trades) > 0 {
		fmt.Fprintln(w)
		renderTrades(w, res.Trades)
	}
}

func renderMetrics(w io.Writer, m domain.PerformanceMetrics, withBenchmark bool) {
	fmt.Fprintln(w, sectionStyle.Render("Risk"))
	row(w, "volatility", valueStyle.Render(pct(m.Volatility)))
	row(w, "max drawdown", lossStyle.Render(pct(m.MaxDrawdown)))
	row(w, "sharpe", ratio(m.SharpeRatio))
	row(w, "sortino", ratio(m.SortinoRatio))
	row(w, "calmar", ratio(m.CalmarRatio))
	row(w, "VaR 95", lossStyle.Render(pct(-m.VaR95)))
	row(w, "CVaR 95", lossStyle.Render(pct(-m.CVaR95)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, sectionStyle.Render("Trades"))
	row(w, "total", valueStyle.Render(fmt.Sprintf("%d", m.TotalTrades)))
	row(w, "win rate", valueStyle.Render(fmt.Sprintf("%.1f%%", m.WinRate*100)))
	row(w, "profit factor", ratio(m.ProfitFactor))
	row(w, "average win", gainStyle.Render(money(m.AverageWin)))
	row(w, "average loss", lossStyle.Render(money(m.AverageLoss)))
	row(w, "max consecutive losses", valueStyle.Render(fmt.Sprintf("%d", m.MaxConsecutiveLosses)))
	row(w, "trades per month", valueStyle.Render(fmt.Sprintf("%.2f", m.TradesPerMonth)))
	row(w, "avg holding (days)", valueStyle.Render(fmt.Sprintf("%.1f", m.AverageHoldingPeriod)))

	if withBenchmark {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Benchmark"))
		row(w, "beta", ratio(m.Beta))
		row(w, "alpha", ratio(m.Alpha))
		row(w, "information ratio", ratio(m.InformationRatio))
		row(w, "benchmark annualized", ratio(m.BenchmarkAnnualizedReturn))
	}
}

func renderTrades(w io.Writer, trades []domain.Trade) {
	fmt.Fprintln(w, sectionStyle.Render("Closed trades"))
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("  %-5s  %-10s  %-10s  %10s  %10s  %8s  %12s  %8s",
		"side", "entry", "exit", "entry px", "exit px", "qty", "pnl", "pnl %")))
	for _, t := range trades {
		line := fmt.Sprintf("  %-5s  %-10s  %-10s  %10.2f  %10.2f  %8d  ",
			t.Direction, t.EntryDate.Format("2006-01-02"), t.ExitDate.Format("2006-01-02"),
			t.EntryPrice, t.ExitPrice, t.Quantity)
		fmt.Fprintln(w, line+
			signed(t.PnL, fmt.Sprintf("%12.2f", t.PnL))+"  "+
			signed(t.PnLPercentage, fmt.Sprintf("%7.2f%%", t.PnLPercentage*100)))
	}
}

func renderBatch(w io.Writer, items []backtest.BatchItem, summary backtest.BatchSummary) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Sweep  %d runs  %d ok  %d failed",
		summary.Runs, summary.Succeeded, summary.Failed)))
	fmt.Fprintln(w)
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("  %-8s  %5s  %5s  %10s  %9s  %9s  %8s",
		"ticker", "short", "long", "return", "sharpe", "max dd", "trades")))
	for i, it := range items {
		prefix := fmt.Sprintf("  %-8s  %5d  %5d  ", it.Request.Ticker, it.Request.Params.ShortPeriod, it.Request.Params.LongPeriod)
		if it.Result == nil {
			fmt.Fprintln(w, prefix+lossStyle.Render(it.Error))
			continue
		}
		r := it.Result
		line := prefix +
			signed(r.TotalReturn, fmt.Sprintf("%10s", pct(r.TotalReturn))) + "  " +
			fmt.Sprintf("%9s", r.Metrics.SharpeRatio.String()) + "  " +
			fmt.Sprintf("%9s", pct(r.Metrics.MaxDrawdown)) + "  " +
			fmt.Sprintf("%8d", r.Metrics.TotalTrades)
		if i == summary.Best {
			line += bestStyle.Render("  ★ best")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, sectionStyle.Render("Averages"))
	row(w, "total return", ratio(summary.MeanTotalReturn))
	row(w, "sharpe", ratio(summary.MeanSharpe))
	row(w, "sortino", ratio(summary.MeanSortino))
	row(w, "max drawdown", ratio(summary.MeanMaxDrawdown))
	row(w, "profit factor", ratio(summary.MeanProfitFactor))
}

func renderResults(w io.Writer, rows []store.ResultSummary) {
	if len(rows) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no archived results"))
		return
	}
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("  %-36s  %-10s  %-8s  %7s  %-23s  %10s  %9s",
		"id", "strategy", "ticker", "params", "range", "return", "sharpe")))
	for _, r := range rows {
		params := fmt.Sprintf("%d/%d", r.Params.ShortPeriod, r.Params.LongPeriod)
		span := r.StartDate.Format("2006-01-02") + ".." + r.EndDate.Format("2006-01-02")
		line := fmt.Sprintf("  %-36s  %-10s  %-8s  %7s  %-23s  ", r.ID, r.StrategyID, r.Ticker, params, span)
		fmt.Fprintln(w, line+
			signed(r.TotalReturn, fmt.Sprintf("%10s", pct(r.TotalReturn)))+"  "+
			fmt.Sprintf("%9s", strings.TrimSpace(r.Metrics.SharpeRatio.String())))
	}
}
