// Package api exposes the HTTP surface: the analyze endpoint, the session
// event listing, and health. Handlers stay thin; orchestration lives in the
// dispatcher.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/chatcoach/coachd/pkg/cache"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/database"
	"github.com/chatcoach/coachd/pkg/orchestrator"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	dispatcher *orchestrator.Dispatcher
	dbClient   *database.Client
	events     cache.EventLister
	cfg        *config.Config
}

// NewServer wires the API server and registers its routes. events may be nil
// when the cache backend cannot enumerate sessions.
func NewServer(dispatcher *orchestrator.Dispatcher, dbClient *database.Client, events cache.EventLister, cfg *config.Config) *Server {
	s := &Server{
		echo:       echo.New(),
		dispatcher: dispatcher,
		dbClient:   dbClient,
		events:     events,
		cfg:        cfg,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.analyzeHandler)
	v1.GET("/sessions/:id/events", s.sessionEventsHandler)
}

// Handler returns the root HTTP handler, used directly in tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves HTTP on addr and blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
