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

// Package server implements the trust daemon: a line-oriented protocol
// endpoint answering certificate validity queries against the CRL
// cache, OCSP responders, and configured keyservers.
package server

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeremyhahn/go-trustd/internal/assuan"
	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
	"github.com/jeremyhahn/go-trustd/pkg/crlcache"
	"github.com/jeremyhahn/go-trustd/pkg/keyserver"
	"github.com/jeremyhahn/go-trustd/pkg/metrics"
	"github.com/jeremyhahn/go-trustd/pkg/ocsp"
	"github.com/jeremyhahn/go-trustd/pkg/validate"
)

// Config configures a Server.
type Config struct {
	// Logger receives daemon diagnostics; nil uses the default adapter.
	Logger logger.Logger

	// SocketPath is the unix socket to listen on. Unused by ServeConn.
	SocketPath string

	// Version is reported in the greeting and by GETINFO version.
	Version string

	// Certs is the certificate cache shared by all sessions.
	Certs *certstore.Store

	// CRLs is the CRL cache shared by all sessions.
	CRLs *crlcache.Cache

	// OCSP queries responders; required when OCSPEnabled is set.
	OCSP *ocsp.Client

	// OCSPEnabled administratively enables OCSP checking.
	OCSPEnabled bool

	// ForceDefaultResponder routes every OCSP query to the configured
	// default responder.
	ForceDefaultResponder bool

	// Keyservers seeds empty session registries, in order.
	Keyservers []string

	// HTTPProxy is the initial proxy for outbound requests; sessions
	// may override it per connection.
	HTTPProxy string

	// AllowCRLFetch permits retrieving CRLs over HTTP/HTTPS.
	AllowCRLFetch bool
}

// Server accepts protocol sessions on a unix socket. Sessions are
// served one at a time; the protocol is strictly synchronous and the
// daemon's collaborators are shared across sessions.
type Server struct {
	cfg       Config
	log       logger.Logger
	validator *validate.Validator
	ks        *keyserver.Client

	mu       sync.Mutex
	listener net.Listener
	closing  bool
}

// New creates a server around the shared caches.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		cfg:       cfg,
		log:       cfg.Logger,
		validator: validate.New(cfg.Certs, cfg.Logger),
		ks:        keyserver.NewClient(keyserver.ClientConfig{Logger: cfg.Logger}),
	}
}

// ListenAndServe binds the unix socket and serves sessions until
// Shutdown is called or a client issues SHUTDOWN. Connections from
// other users are refused.
func (s *Server) ListenAndServe() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("server: failed to create socket directory: %w", err)
	}
	// A stale socket from a previous run blocks the bind.
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %q: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("server: failed to set socket mode: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("listening", logger.String("socket", s.cfg.SocketPath))

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return fmt.Errorf("server: accept failed: %w", err)
		}
		if err := checkPeer(conn); err != nil {
			s.log.Warn("refusing connection", logger.Error(err))
			_ = conn.Close()
			continue
		}

		stop, err := s.ServeConn(conn)
		if err != nil && err != io.EOF {
			s.log.Warn("session ended with error", logger.Error(err))
		}
		_ = conn.Close()
		if stop {
			s.log.Info("shutdown requested by client")
			s.Shutdown()
			return nil
		}
	}
}

// Shutdown closes the listener; the accept loop then returns.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.closing = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// ServeConn runs one protocol session over RW, which may be a socket
// connection or the process's stdin/stdout pair. The boolean return
// reports whether the peer asked the daemon to shut down.
func (s *Server) ServeConn(rw io.ReadWriter) (bool, error) {
	metrics.SessionStarted()
	defer metrics.SessionEnded()

	sess := s.newSession()
	sess.log.Debug("session started")
	err := s.dispatcher(sess).Process(rw)
	sess.log.Debug("session ended")
	return sess.stopme, err
}

// dispatcher builds the command table for one session.
func (s *Server) dispatcher(sess *session) *assuan.Server {
	asrv := assuan.NewServer()
	asrv.HelloLine = fmt.Sprintf("trustd %s at your service", s.cfg.Version)
	asrv.OnOption = sess.option
	asrv.OnReset = func() {
		// The keyserver registry deliberately survives RESET.
		sess.forceCRLRefresh = false
	}

	register := func(name string, handler assuan.HandlerFunc, help string) {
		asrv.Register(name, func(actx *assuan.Context, line string) error {
			start := time.Now()
			err := handler(actx, line)
			status := metrics.StatusSuccess
			if err != nil {
				status = metrics.StatusError
				sess.log.Error("command failed",
					logger.String("command", name), logger.Error(err))
			}
			metrics.RecordCommand(name, status, time.Since(start).Seconds())
			return err
		}, help)
	}

	register("ISVALID", sess.cmdIsValid, helpIsValid)
	register("CHECKCRL", sess.cmdCheckCRL, helpCheckCRL)
	register("CHECKOCSP", sess.cmdCheckOCSP, helpCheckOCSP)
	register("LOOKUP", sess.cmdLookup, helpLookup)
	register("LOADCRL", sess.cmdLoadCRL, helpLoadCRL)
	register("LISTCRLS", sess.cmdListCRLs, helpListCRLs)
	register("CACHECERT", sess.cmdCacheCert, helpCacheCert)
	register("VALIDATE", sess.cmdValidate, helpValidate)
	register("KEYSERVER", sess.cmdKeyserver, helpKeyserver)
	register("KS_SEARCH", sess.cmdKSSearch, helpKSSearch)
	register("KS_GET", sess.cmdKSGet, helpKSGet)
	register("KS_FETCH", sess.cmdKSFetch, helpKSFetch)
	register("KS_PUT", sess.cmdKSPut, helpKSPut)
	register("GETINFO", sess.cmdGetInfo, helpGetInfo)
	register("SHUTDOWN", sess.cmdShutdown, helpShutdown)
	return asrv
}
