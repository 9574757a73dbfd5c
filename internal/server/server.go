// Package server exposes the deliberation engine over HTTP: a JSON control
// API for sessions plus live event streams as server-sent events and over
// websockets. Both streams accept a jq filter.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/agora"
	"github.com/hupe1980/agora/logging"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	// HeartbeatInterval paces SSE comments and websocket pings.
	HeartbeatInterval time.Duration
	Logger            logging.Logger
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		AllowedOrigins:    []string{"*"},
		ReadTimeout:       30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Server is the HTTP server.
type Server struct {
	config   Config
	agora    *agora.Agora
	router   *chi.Mux
	upgrader websocket.Upgrader
	logger   logging.Logger
	httpSrv  *http.Server
}

// New creates a server for a.
func New(a *agora.Agora, optFns ...func(c *Config)) *Server {
	cfg := DefaultConfig()
	for _, fn := range optFns {
		fn(&cfg)
	}
	s := &Server{
		config: cfg,
		agora:  a,
		router: chi.NewRouter(),
		logger: logging.OrNoOp(cfg.Logger),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        s.config.Addr,
		Handler:     s.router,
		ReadTimeout: s.config.ReadTimeout,
	}
	s.logger.Info("server.listen", "addr", s.config.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
