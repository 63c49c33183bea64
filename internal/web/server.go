package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/cpr_daily_bot/internal/domain"
	"github.com/vitos/cpr_daily_bot/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes read-only status endpoints. It never mutates the trade
// lifecycle; all trading decisions stay with the orchestrator.
type Server struct {
	router       *http.ServeMux
	server       *http.Server
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
	accounts     *usecase.AccountService
	tradeRepo    domain.TradeRepository
	logger       *zap.Logger
}

func NewServer(
	port int,
	orchestrator *usecase.Orchestrator,
	scheduler *usecase.Scheduler,
	accounts *usecase.AccountService,
	tradeRepo domain.TradeRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:       http.NewServeMux(),
		orchestrator: orchestrator,
		scheduler:    scheduler,
		accounts:     accounts,
		tradeRepo:    tradeRepo,
		logger:       logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
