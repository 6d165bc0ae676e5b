// Package proxy serves the detection engine over HTTP and WebSocket.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/security"
	"github.com/raaihank/pdn-sentinel/internal/service"
	"github.com/raaihank/pdn-sentinel/internal/web"
	"github.com/raaihank/pdn-sentinel/internal/websocket"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
	"go.uber.org/zap"
)

// Version is reported by /info
var Version = "0.1.0"

// Server represents the API server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	services  *service.Services
	limiter   *security.RateLimiter
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	startedAt time.Time
}

// New creates a new API server instance
func New(cfg *config.Config, services *service.Services, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("proxy"),
		services:  services,
		limiter:   security.NewRateLimiter(&cfg.Security),
		router:    mux.NewRouter(),
		wsHub:     websocket.NewHub(&cfg.WebSocket, log),
		startedAt: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
		review := websocket.NewReviewHandler(s.engine, s.wsHub, &s.config.WebSocket, s.config.Output.PreviewLength, s.logger)
		s.router.Handle(s.config.WebSocket.ReviewPath, review).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.limiter.Middleware)
	api.Use(s.bodyLimitMiddleware)

	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{name}", s.handlePutCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{name}", s.handleDeleteCategory).Methods(http.MethodDelete)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/anonymize", s.handleAnonymize).Methods(http.MethodPost)
	api.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
}

func (s *Server) engine() *workflow.Engine {
	return s.services.Engine()
}

// Handler returns the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub and serves until Stop is called
func (s *Server) Start(ctx context.Context) error {
	reg := s.engine().Registry()
	s.logger.Info("Starting pdn-sentinel API server",
		zap.Int("port", s.config.Server.Port),
		zap.String("profile", reg.Name()),
		zap.Int("categories", reg.Len()),
		zap.Bool("websocket", s.config.WebSocket.Enabled),
		zap.Bool("rate_limit", s.config.Security.RateLimit.Enabled),
	)

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanupRoutine(ctx)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping pdn-sentinel API server")
	return s.server.Shutdown(ctx)
}

// Reloaded broadcasts a system status event after the engine changed
func (s *Server) Reloaded(message string) {
	reg := s.engine().Registry()
	s.wsHub.BroadcastEvent(websocket.Event{
		Type: websocket.EventTypeSystemStatus,
		Data: websocket.SystemStatusEvent{
			Status:           "reloaded",
			Message:          message,
			Profile:          reg.Name(),
			ActiveCategories: reg.Len(),
			ConnectedClients: s.wsHub.ActiveConnections(),
		},
	})
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
