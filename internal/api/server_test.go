package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/marketdata"
	"strategylab/internal/observability"
	"strategylab/internal/store"
	"strategylab/internal/strategy/builtins"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

type staticProvider struct {
	closes map[string][]float64
	err    error
}

func (p *staticProvider) GetBars(_ context.Context, ticker string, _, _ time.Time, tf domain.Timeframe) (*domain.BarSeries, error) {
	if p.err != nil {
		return nil, p.err
	}
	closes, ok := p.closes[ticker]
	if !ok {
		return nil, marketdata.ErrNoData
	}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: ticker, Timestamp: day0.AddDate(0, 0, i), Close: c, AdjClose: c}
	}
	return domain.NewBarSeries(ticker, tf, bars)
}

type testEnv struct {
	server  *Server
	archive *store.SQLiteStore
}

func newTestEnv(t *testing.T, provider marketdata.Provider) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	archive, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	metrics := observability.NewMetrics("strategylab")
	bt, err := backtest.New(backtest.Options{
		Registry:   builtins.NewRegistry(),
		Provider:   provider,
		Archive:    archive,
		Metrics:    metrics,
		MaxWorkers: 2,
		Log:        log,
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Backtest.InitialCapital = 1000
	srv := NewServer(cfg, Deps{Backtester: bt, Archive: archive, Metrics: metrics, Log: log})
	return &testEnv{server: srv, archive: archive}
}

func scenarioProvider() *staticProvider {
	return &staticProvider{closes: map[string][]float64{
		"TEST": {10, 9, 8, 7, 6, 7, 8, 9, 10, 11},
	}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func scenarioBody() BacktestRequest {
	return BacktestRequest{
		StrategyID: builtins.SMACrossID,
		Ticker:     "TEST",
		Params:     domain.Params{ShortPeriod: 2, LongPeriod: 4},
		Start:      "2024-01-01",
		End:        "2024-12-31",
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, scenarioProvider())
	w := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRunBacktestEndpoint(t *testing.T) {
	e := newTestEnv(t, scenarioProvider())

	w := e.do(t, http.MethodPost, "/api/v1/backtests", scenarioBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[domain.BacktestResult](t, w)
	assert.InDelta(t, 1000, res.InitialCapital, 1e-9, "default capital from config")
	assert.InDelta(t, 1375, res.FinalCapital, 1e-9)
	require.Len(t, res.Trades, 1)
	assert.Len(t, res.EquityCurve, 10)
	assert.Contains(t, w.Body.String(), `"profit_factor":null`)
}

func TestRunBacktestEndpointErrors(t *testing.T) {
	cases := map[string]struct {
		provider *staticProvider
		body     any
		status   int
		code     string
	}{
		"missing ticker": {
			provider: scenarioProvider(),
			body:     map[string]any{"strategy_id": builtins.SMACrossID, "start": "2024-01-01", "end": "2024-02-01"},
			status:   http.StatusBadRequest,
			code:     "INVALID_REQUEST",
		},
		"bad date": {
			provider: scenarioProvider(),
			body: func() BacktestRequest {
				b := scenarioBody()
				b.Start = "01/02/2024"
				return b
			}(),
			status: http.StatusBadRequest,
			code:   "INVALID_CONFIG",
		},
		"equal periods": {
			provider: scenarioProvider(),
			body: func() BacktestRequest {
				b := scenarioBody()
				b.Params.LongPeriod = 2
				return b
			}(),
			status: http.StatusBadRequest,
			code:   "INVALID_CONFIG",
		},
		"provider down": {
			provider: &staticProvider{err: errors.New("connection refused")},
			body:     scenarioBody(),
			status:   http.StatusBadGateway,
			code:     "PROVIDER_UNAVAILABLE",
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			e := newTestEnv(t, c.provider)
			w := e.do(t, http.MethodPost, "/api/v1/backtests", c.body)
			assert.Equal(t, c.status, w.Code, w.Body.String())
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, c.code, resp.Error.Code)
		})
	}
}

func TestRunBatchEndpoint(t *testing.T) {
	e := newTestEnv(t, scenarioProvider())

	bad := scenarioBody()
	bad.Params = domain.Params{ShortPeriod: 5, LongPeriod: 3}
	ema := scenarioBody()
	ema.StrategyID = builtins.EMACrossID

	w := e.do(t, http.MethodPost, "/api/v1/backtests/batch", BatchRequest{Runs: []BacktestRequest{scenarioBody(), bad, ema}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Items []struct {
			Result *domain.BacktestResult `json:"result"`
			Error  string                 `json:"error"`
		} `json:"items"`
		Summary backtest.BatchSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)
	assert.NotNil(t, resp.Items[0].Result)
	assert.NotEmpty(t, resp.Items[1].Error)
	assert.Equal(t, 2, resp.Summary.Succeeded)
	assert.Equal(t, 1, resp.Summary.Failed)

	w = e.do(t, http.MethodPost, "/api/v1/backtests/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComputeMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, scenarioProvider())

	flat := make([]domain.EquityPoint, 5)
	for i := range flat {
		flat[i] = domain.EquityPoint{Timestamp: day0.AddDate(0, 0, i), Equity: 1000}
	}
	w := e.do(t, http.MethodPost, "/api/v1/metrics", MetricsRequest{Curve: flat})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"sharpe_ratio":null`)
	assert.Contains(t, w.Body.String(), `"trades":[]`)

	w = e.do(t, http.MethodPost, "/api/v1/metrics", MetricsRequest{Curve: flat[:1]})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CURVE", decode[ErrorResponse](t, w).Error.Code)
}

func TestListStrategiesEndpoint(t *testing.T) {
	e := newTestEnv(t, scenarioProvider())
	w := e.do(t, http.MethodGet, "/api/v1/strategies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StrategiesResponse](t, w)
	assert.Equal(t, []string{builtins.EMACrossID, builtins.SMACrossID}, resp.Strategies)
}

func TestResultsEndpoints(t *testing.T) {
	e := newTestEnv(t, scenarioProvider())

	w := e.do(t, http.MethodPost, "/api/v1/backtests", scenarioBody())
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/results?ticker=TEST&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[ResultsResponse](t, w)
	require.Len(t, list.Results, 1)
	assert.Equal(t, builtins.SMACrossID, list.Results[0].StrategyID)

	w = e.do(t, http.MethodGet, "/api/v1/results/"+list.Results[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	one := decode[ResultResponse](t, w)
	assert.Len(t, one.Trades, 1)
	assert.InDelta(t, 1375, one.Result.FinalCapital, 1e-9)

	w = e.do(t, http.MethodGet, "/api/v1/results/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/results?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResultsWithoutArchive(t *testing.T) {
	bt, err := backtest.New(backtest.Options{Registry: builtins.NewRegistry(), Provider: scenarioProvider()})
	require.NoError(t, err)
	srv := NewServer(config.Default(), Deps{Backtester: bt, Log: slog.New(slog.NewTextHandler(io.Discard, nil))})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/results", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, scenarioProvider())
	e.do(t, http.MethodPost, "/api/v1/backtests", scenarioBody())

	w := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `strategylab_backtest_runs_total{status="ok",strategy="sma-cross"} 1`), body)
	assert.Contains(t, body, `strategylab_cache_requests_total{result="miss"} 1`)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2024-03-05T14:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 19, 30, 0, 0, time.UTC), d)

	_, err = parseDate("March 5")
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	cfg := config.Default()
	cfg.Server.CORSOrigins = []string{"https://dash.example.com"}
	bt, err := backtest.New(backtest.Options{
		Registry: builtins.NewRegistry(),
		Provider: scenarioProvider(),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	srv := NewServer(cfg, Deps{Backtester: bt})

	get := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w
	}

	w := get("https://dash.example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get("https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	// Without configured origins no CORS headers are added.
	e := newTestEnv(t, scenarioProvider())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
