// Package api provides the HTTP and gRPC server for strategylab, exposing
// backtests, standalone metrics, the strategy catalogue and the result
// archive.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"strategylab/internal/analytics"
	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/observability"
	"strategylab/internal/store"
)

// Deps are the collaborators the server exposes. Backtester is required;
// Archive and Metrics may be nil.
type Deps struct {
	Backtester *backtest.Backtester
	Analyzer   *analytics.Analyzer
	Archive    store.ResultStore
	Metrics    *observability.Metrics
	Log        *slog.Logger
}

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string

	backtester     *backtest.Backtester
	analyzer       *analytics.Analyzer
	archive        store.ResultStore
	metrics        *observability.Metrics
	defaultCapital float64
	log            *slog.Logger

	router     *gin.Engine
	handler    http.Handler
	httpServer *http.Server
	grpcServer *grpc.Server
}

// NewServer creates a new Server configured from the given Config.
func NewServer(cfg *config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = analytics.NewAnalyzer(cfg.Backtest.RiskFreeRate)
	}

	s := &Server{
		httpAddr:       net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		grpcAddr:       net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort)),
		backtester:     deps.Backtester,
		analyzer:       analyzer,
		archive:        deps.Archive,
		metrics:        deps.Metrics,
		defaultCapital: cfg.Backtest.InitialCapital,
		log:            log.With("component", "api"),
	}

	s.router = gin.New()
	s.router.Use(recovery(s.log), requestLogger(s.log))
	s.routes(s.router)

	var handler http.Handler = s.router
	if len(cfg.Server.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         600,
		}).Handler(handler)
	}
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpcServer = grpc.NewServer()
	RegisterBacktestService(s.grpcServer, grpcService{s: s})
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// GRPCServer returns the gRPC server with every service registered.
func (s *Server) GRPCServer() *grpc.Server { return s.grpcServer }

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	grpcLn, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("grpc server listening", "addr", grpcLn.Addr().String())
		if err := s.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers. gRPC
// calls still running when ctx expires are cut off.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	err := s.httpServer.Shutdown(ctx)

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-stopped
	}
	s.log.Info("api server stopped")
	return err
}
