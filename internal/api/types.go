package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc/codes"

	"strategylab/internal/analytics"
	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/store"
)

// BacktestRequest is the wire form of one backtest. Dates accept either
// YYYY-MM-DD or RFC 3339. A zero InitialCapital uses the configured default.
type BacktestRequest struct {
	StrategyID     string        `json:"strategy_id" binding:"required"`
	Ticker         string        `json:"ticker" binding:"required"`
	Params         domain.Params `json:"params"`
	Start          string        `json:"start" binding:"required"`
	End            string        `json:"end" binding:"required"`
	InitialCapital float64       `json:"initial_capital" binding:"gte=0"`
}

// BatchRequest runs several backtests at once.
type BatchRequest struct {
	Runs []BacktestRequest `json:"runs" binding:"required,min=1,dive"`
}

// BatchResponse carries per-run outcomes in request order and their summary.
type BatchResponse struct {
	Items   []backtest.BatchItem  `json:"items"`
	Summary backtest.BatchSummary `json:"summary"`
}

// MetricsRequest asks for the metrics of an externally produced curve.
type MetricsRequest struct {
	Curve     []domain.EquityPoint `json:"curve" binding:"required"`
	Benchmark []domain.EquityPoint `json:"benchmark,omitempty"`
}

// MetricsResponse is the analysis of a standalone curve. Trades are the
// swings reconstructed from the curve.
type MetricsResponse struct {
	Metrics domain.PerformanceMetrics `json:"metrics"`
	Trades  []domain.Trade            `json:"trades"`
}

// StrategiesResponse lists the registered strategy ids.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// ResultsResponse lists archived result summaries.
type ResultsResponse struct {
	Results []store.ResultSummary `json:"results"`
}

// ResultResponse is one archived result with its ledger.
type ResultResponse struct {
	Result store.ResultSummary `json:"result"`
	Trades []domain.Trade      `json:"trades"`
}

// ErrorResponse is the error envelope of every failed HTTP call.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// toRequest converts the wire form into a backtest request.
func (r BacktestRequest) toRequest(defaultCapital float64) (backtest.Request, error) {
	start, err := parseDate(r.Start)
	if err != nil {
		return backtest.Request{}, &backtest.ConfigError{Field: "start", Reason: err.Error()}
	}
	end, err := parseDate(r.End)
	if err != nil {
		return backtest.Request{}, &backtest.ConfigError{Field: "end", Reason: err.Error()}
	}
	capital := r.InitialCapital
	if capital == 0 {
		capital = defaultCapital
	}
	return backtest.Request{
		StrategyID:     r.StrategyID,
		Ticker:         r.Ticker,
		Params:         r.Params,
		Start:          start,
		End:            end,
		InitialCapital: capital,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

// errorClass maps an error to its HTTP status, envelope code and gRPC code.
type errorClass struct {
	status int
	code   string
	grpc   codes.Code
}

func classify(err error) errorClass {
	switch {
	case errors.Is(err, backtest.ErrInvalidConfig):
		return errorClass{http.StatusBadRequest, "INVALID_CONFIG", codes.InvalidArgument}
	case errors.Is(err, analytics.ErrInsufficientData), errors.Is(err, analytics.ErrNonPositiveEquity):
		return errorClass{http.StatusBadRequest, "INVALID_CURVE", codes.InvalidArgument}
	case errors.Is(err, domain.ErrInvalidSeries):
		return errorClass{http.StatusUnprocessableEntity, "INVALID_SERIES", codes.FailedPrecondition}
	case errors.Is(err, backtest.ErrProvider):
		return errorClass{http.StatusBadGateway, "PROVIDER_UNAVAILABLE", codes.Unavailable}
	case errors.Is(err, store.ErrNotFound):
		return errorClass{http.StatusNotFound, "NOT_FOUND", codes.NotFound}
	case errors.Is(err, context.DeadlineExceeded):
		return errorClass{http.StatusGatewayTimeout, "TIMEOUT", codes.DeadlineExceeded}
	case errors.Is(err, context.Canceled):
		return errorClass{http.StatusServiceUnavailable, "CANCELLED", codes.Canceled}
	default:
		return errorClass{http.StatusInternalServerError, "INTERNAL_ERROR", codes.Internal}
	}
}
