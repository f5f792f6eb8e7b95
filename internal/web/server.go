package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/enroll"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/web/handlers"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
)

// Server represents the dashboard web server
type Server struct {
	config     config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
}

// Deps are the collaborators the dashboard serves. Live may be nil when no
// recognition session runs in this process.
type Deps struct {
	Config   config.Config
	Repo     database.Repository
	Enroll   *enroll.Service
	Live     *handlers.LiveHub
	Detector string
	Logger   *slog.Logger
}

// NewServer creates a new web server
func NewServer(deps Deps) *Server {
	logger := logging.OrDefault(deps.Logger).With("component", "web")
	if deps.Live == nil {
		deps.Live = handlers.NewLiveHub(logger)
	}

	r := chi.NewRouter()
	s := &Server{
		config: deps.Config,
		deps:   deps,
		router: r,
		logger: logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(deps.Config.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(deps.Config.Web.Host, strconv.Itoa(deps.Config.Web.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: the live event stream stays open.
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Live returns the hub a recognition session publishes to.
func (s *Server) Live() *handlers.LiveHub {
	return s.deps.Live
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
