package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"strategylab/internal/analytics"
	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/store"
)

// routes registers every HTTP endpoint on r.
func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/backtests", s.handleRunBacktest)
		v1.POST("/backtests/batch", s.handleRunBatch)
		v1.POST("/metrics", s.handleComputeMetrics)
		v1.GET("/strategies", s.handleListStrategies)
		v1.GET("/results", s.handleListResults)
		v1.GET("/results/:id", s.handleGetResult)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRunBacktest handles POST /api/v1/backtests.
func (s *Server) handleRunBacktest(c *gin.Context) {
	var body BacktestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.toRequest(s.defaultCapital)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.backtester.Run(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleRunBatch handles POST /api/v1/backtests/batch.
func (s *Server) handleRunBatch(c *gin.Context) {
	var body BatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	reqs := make([]backtest.Request, len(body.Runs))
	for i, run := range body.Runs {
		req, err := run.toRequest(s.defaultCapital)
		if err != nil {
			s.fail(c, err)
			return
		}
		reqs[i] = req
	}
	items, summary, err := s.backtester.RunBatch(c.Request.Context(), reqs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, BatchResponse{Items: items, Summary: summary})
}

// handleComputeMetrics handles POST /api/v1/metrics.
func (s *Server) handleComputeMetrics(c *gin.Context) {
	var body MetricsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.computeMetrics(body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) computeMetrics(body MetricsRequest) (*MetricsResponse, error) {
	trades := analytics.ExtractTrades(body.Curve)
	if trades == nil {
		trades = []domain.Trade{}
	}
	m, err := s.analyzer.Analyze(analytics.MetricsInput{
		Curve:     body.Curve,
		Trades:    trades,
		Benchmark: body.Benchmark,
	})
	if err != nil {
		return nil, err
	}
	return &MetricsResponse{Metrics: m, Trades: trades}, nil
}

// handleListStrategies handles GET /api/v1/strategies.
func (s *Server) handleListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, StrategiesResponse{Strategies: s.backtester.Strategies()})
}

// handleListResults handles GET /api/v1/results?strategy_id=&ticker=&limit=.
func (s *Server) handleListResults(c *gin.Context) {
	if !s.requireArchive(c) {
		return
	}
	filter := store.ResultFilter{
		StrategyID: c.Query("strategy_id"),
		Ticker:     c.Query("ticker"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: "limit must be a non-negative integer",
			}})
			return
		}
		filter.Limit = n
	}

	results, err := s.archive.ListResults(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	if results == nil {
		results = []store.ResultSummary{}
	}
	c.JSON(http.StatusOK, ResultsResponse{Results: results})
}

// handleGetResult handles GET /api/v1/results/:id.
func (s *Server) handleGetResult(c *gin.Context) {
	if !s.requireArchive(c) {
		return
	}
	id := c.Param("id")
	summary, err := s.archive.GetResult(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	trades, err := s.archive.ListTrades(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	c.JSON(http.StatusOK, ResultResponse{Result: *summary, Trades: trades})
}

func (s *Server) requireArchive(c *gin.Context) bool {
	if s.archive != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrorDetail{
		Code:    "ARCHIVE_DISABLED",
		Message: "result archive is not configured",
	}})
	return false
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	}})
}

func (s *Server) fail(c *gin.Context, err error) {
	class := classify(err)
	if class.status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	detail := ErrorDetail{Code: class.code, Message: err.Error()}
	var cfgErr *backtest.ConfigError
	if errors.As(err, &cfgErr) {
		detail.Details = map[string]any{"field": cfgErr.Field}
	}
	c.JSON(class.status, ErrorResponse{Error: detail})
}
