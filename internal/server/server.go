// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// MaxRequestBodySize caps request bodies (1 MiB).
	MaxRequestBodySize = 1 << 20

	// DefaultRateLimit and DefaultRateBurst are the per-client token bucket.
	DefaultRateLimit = 5.0
	DefaultRateBurst = 20

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
)

// RouteReporter reports which provider route a settings value would use.
// *cloud.Dispatcher satisfies it.
type RouteReporter interface {
	RouteFor(settings model.AISettings) cloud.Route
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the JSON API over a chat session.
type Server struct {
	addr    string
	version string
	session *session.Session
	routes  RouteReporter

	cors     *CORSConfig
	limiter  *RateLimiter
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger

	router  *mux.Router
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server for sess listening on addr. An empty addr uses
// DefaultAddr.
func NewServer(addr string, sess *session.Session) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		addr:     addr,
		version:  "dev",
		session:  sess,
		cors:     DefaultCORSConfig(),
		gatherer: prometheus.DefaultGatherer,
		log:      logrus.StandardLogger(),
	}
}

// WithVersion sets the version reported by /health.
func (s *Server) WithVersion(v string) *Server {
	s.version = v
	return s
}

// WithRoutes lets /health report the provider route.
func (s *Server) WithRoutes(r RouteReporter) *Server {
	s.routes = r
	return s
}

// WithCORS sets the allowed origins.
func (s *Server) WithCORS(origins []string) *Server {
	s.cors = NewCORSConfig(origins)
	return s
}

// WithRateLimit enables per-client rate limiting. perSecond <= 0 disables it.
func (s *Server) WithRateLimit(perSecond float64, burst int) *Server {
	if s.limiter != nil {
		s.limiter.Stop()
		s.limiter = nil
	}
	if perSecond > 0 {
		s.limiter = NewRateLimiter(perSecond, burst, 10*time.Minute)
	}
	return s
}

// WithGatherer sets the registry exposed on /metrics.
func (s *Server) WithGatherer(g prometheus.Gatherer) *Server {
	s.gatherer = g
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(log logrus.FieldLogger) *Server {
	if log != nil {
		s.log = log
	}
	return s
}

// Addr returns the listen address, or the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		s.setupRoutes()
		s.handler = s.middleware()(s.router)
	}
	return s.handler
}

// middleware builds the chain. Recovery runs outermost so panics anywhere
// below still produce a response.
func (s *Server) middleware() Middleware {
	chain := []Middleware{
		RecoveryMiddleware(s.log),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		LoggingMiddleware(s.log),
	}
	if s.limiter != nil {
		chain = append(chain, RateLimitMiddleware(s.limiter, s.log))
	}
	chain = append(chain, BodyLimitMiddleware(MaxRequestBodySize))
	return Chain(chain...)
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "bad_request", "method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chats", s.handleListChats).Methods(http.MethodGet)
	api.HandleFunc("/chats", s.handleCreateChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}", s.handleGetChat).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}", s.handleRenameChat).Methods(http.MethodPatch)
	api.HandleFunc("/chats/{id}", s.handleDeleteChat).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{id}/messages", s.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}/export", s.handleExportChat).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSend).Methods(http.MethodPost)

	api.HandleFunc("/active", s.handleGetActive).Methods(http.MethodGet)
	api.HandleFunc("/active", s.handleSetActive).Methods(http.MethodPut)

	api.HandleFunc("/settings/ai", s.handleGetAI).Methods(http.MethodGet)
	api.HandleFunc("/settings/ai", s.handlePutAI).Methods(http.MethodPut)
	api.HandleFunc("/settings/interface", s.handleGetInterface).Methods(http.MethodGet)
	api.HandleFunc("/settings/interface", s.handlePutInterface).Methods(http.MethodPut)
	api.HandleFunc("/preamble", s.handleGetPreamble).Methods(http.MethodGet)
	api.HandleFunc("/preamble", s.handlePutPreamble).Methods(http.MethodPut)
	api.HandleFunc("/layout/sidebar", s.handleGetSidebar).Methods(http.MethodGet)
	api.HandleFunc("/layout/sidebar", s.handlePutSidebar).Methods(http.MethodPut)

	s.router = r
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handler := s.Handler()

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Replies can take as long as the provider timeout allows.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"addr":    ln.Addr().String(),
		"version": s.version,
	}).Info("Server listening")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	limiter := s.limiter
	s.mu.Unlock()

	if limiter != nil {
		limiter.Stop()
	}
	if srv == nil {
		return nil
	}

	s.log.Info("Server shutting down")
	return srv.Shutdown(ctx)
}
