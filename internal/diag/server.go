// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustd.
//
// go-trustd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package diag serves health and metrics endpoints on a separate unix
// socket so that monitoring never competes with the protocol socket.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
	"github.com/jeremyhahn/go-trustd/pkg/crlcache"
)

// DefaultSocketPath is used when the configuration names no socket.
const DefaultSocketPath = "/run/trustd/diag.sock"

// Config holds the diagnostics server configuration.
type Config struct {
	// SocketPath is the unix socket to serve on.
	SocketPath string

	// Version is reported by the health endpoint.
	Version string

	// Logger receives diagnostics; nil disables logging.
	Logger logger.Logger

	// Certs and CRLs are the caches whose sizes the health endpoint
	// reports.
	Certs *certstore.Store
	CRLs  *crlcache.Cache

	// SocketMode is the file mode for the socket (default 0660).
	SocketMode os.FileMode

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the diagnostics endpoints.
type Server struct {
	config   *Config
	router   chi.Router
	logger   logger.Logger
	started  time.Time
	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a diagnostics server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("diag: config is required")
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.SocketMode == 0 {
		cfg.SocketMode = 0660
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	s := &Server{
		config:  cfg,
		logger:  cfg.Logger,
		router:  chi.NewRouter(),
		started: time.Now(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Get("/health", s.healthHandler)
	s.router.Get("/health/live", s.liveHandler)
	s.router.Get("/health/ready", s.readyHandler)
	s.router.Handle("/metrics", promhttp.Handler())
}

// healthStatus is the JSON body of the health endpoint.
type healthStatus struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	CachedCerts int    `json:"cached_certs"`
	CachedCRLs  int    `json:"cached_crls"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	status := healthStatus{
		Status:  "healthy",
		Version: s.config.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.config.Certs != nil {
		status.CachedCerts = s.config.Certs.Len()
	}
	if s.config.CRLs != nil {
		status.CachedCRLs = s.config.CRLs.Count()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	// The daemon is ready as soon as its caches exist; they are built
	// before any listener starts.
	if s.config.Certs == nil || s.config.CRLs == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("caches not initialized"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the unix socket and serves until Stop is called.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.config.SocketPath), 0750); err != nil {
		return fmt.Errorf("diag: failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("diag: failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("diag: failed to listen on %q: %w", s.config.SocketPath, err)
	}
	if err := os.Chmod(s.config.SocketPath, s.config.SocketMode); err != nil {
		_ = listener.Close()
		return fmt.Errorf("diag: failed to set socket mode: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("diagnostics listening", logger.String("socket", s.config.SocketPath))

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("diag: server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and removes the socket.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("diagnostics shutdown failed", logger.Error(err))
			return err
		}
	}
	if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove diagnostics socket", logger.Error(err))
	}
	return nil
}

// SocketPath returns the path of the diagnostics socket.
func (s *Server) SocketPath() string {
	return s.config.SocketPath
}
