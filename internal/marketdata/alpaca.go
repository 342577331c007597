package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"strategylab/internal/domain"
	"strategylab/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// barsClient is the subset of the Alpaca market-data client used here.
type barsClient interface {
	GetBars(symbol string, req alpacamd.GetBarsRequest) ([]alpacamd.Bar, error)
}

// AlpacaConfig configures an AlpacaProvider.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	DataURL   string
	// Feed is the data feed, e.g. "sip" or "iex".
	Feed string
	// Adjustment is the corporate-action adjustment, e.g. "all" or "raw".
	Adjustment         string
	RateLimitPerMinute int
	MaxAttempts        int
	RetryDelay         time.Duration
}

// AlpacaProvider fetches bars from the Alpaca market-data API with rate
// limiting and exponential-backoff retries.
type AlpacaProvider struct {
	client     barsClient
	feed       string
	adjustment string
	limiter    *util.RateLimiter
	attempts   int
	delay      time.Duration
	log        *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider from cfg.
func NewAlpacaProvider(cfg AlpacaConfig, log *slog.Logger) *AlpacaProvider {
	opts := alpacamd.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return newAlpacaProvider(alpacamd.NewClient(opts), cfg, log)
}

func newAlpacaProvider(client barsClient, cfg AlpacaConfig, log *slog.Logger) *AlpacaProvider {
	if cfg.Feed == "" {
		cfg.Feed = "sip"
	}
	if cfg.Adjustment == "" {
		cfg.Adjustment = "all"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 200
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &AlpacaProvider{
		client:     client,
		feed:       cfg.Feed,
		adjustment: cfg.Adjustment,
		limiter:    util.NewRateLimiter(cfg.RateLimitPerMinute),
		attempts:   cfg.MaxAttempts,
		delay:      cfg.RetryDelay,
		log:        log.With("component", "alpaca-provider"),
	}
}

// alpacaTimeFrame maps a domain timeframe to the API's.
func alpacaTimeFrame(tf domain.Timeframe) (alpacamd.TimeFrame, error) {
	switch tf {
	case domain.TimeframeDaily, "":
		return alpacamd.OneDay, nil
	case domain.TimeframeHourly:
		return alpacamd.OneHour, nil
	case domain.TimeframeMinute:
		return alpacamd.OneMin, nil
	default:
		return alpacamd.TimeFrame{}, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, tf)
	}
}

// permanentStatus reports whether an API response status will not change on
// retry: malformed requests, bad credentials and unknown resources.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// GetBars fetches bars for ticker. Prices are adjusted according to the
// configured adjustment, so AdjClose equals Close.
func (p *AlpacaProvider) GetBars(ctx context.Context, ticker string, start, end time.Time, tf domain.Timeframe) (*domain.BarSeries, error) {
	timeframe, err := alpacaTimeFrame(tf)
	if err != nil {
		return nil, err
	}
	ticker = strings.ToUpper(ticker)

	var raw []alpacamd.Bar
	err = util.Retry(ctx, p.attempts, p.delay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var ferr error
		raw, ferr = p.client.GetBars(ticker, alpacamd.GetBarsRequest{
			TimeFrame:  timeframe,
			Start:      start,
			End:        end,
			Feed:       alpacamd.Feed(p.feed),
			Adjustment: alpacamd.Adjustment(p.adjustment),
		})
		if ferr == nil {
			return nil
		}
		var apiErr *alpaca.APIError
		if errors.As(ferr, &apiErr) && permanentStatus(apiErr.StatusCode) {
			p.log.Warn("GetBars rejected", "ticker", ticker, "status", apiErr.StatusCode, "error", ferr)
			return util.Permanent(ferr)
		}
		p.log.Warn("GetBars failed", "ticker", ticker, "error", ferr)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", ticker, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s %s from alpaca", ErrNoData, ticker, tf)
	}

	bars := make([]domain.Bar, len(raw))
	for i, ab := range raw {
		bars[i] = domain.Bar{
			Symbol:     ticker,
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			AdjClose:   ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		}
	}
	p.log.Debug("bars fetched", "ticker", ticker, "timeframe", tf, "bars", len(bars))
	return domain.NewBarSeries(ticker, tf, bars)
}
