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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-trustd/internal/config"
	"github.com/jeremyhahn/go-trustd/internal/diag"
	"github.com/jeremyhahn/go-trustd/internal/server"
	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
	"github.com/jeremyhahn/go-trustd/pkg/crlcache"
	"github.com/jeremyhahn/go-trustd/pkg/metrics"
	"github.com/jeremyhahn/go-trustd/pkg/ocsp"
	"github.com/jeremyhahn/go-trustd/pkg/storage"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/trustd/config.yaml", "Path to configuration file")
	socketOverride := flag.String("socket", "", "Override the protocol socket path")
	stdio := flag.Bool("stdio", false, "Serve a single session on stdin/stdout and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("trustd\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("TRUSTD_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trustd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *socketOverride != "" {
		cfg.Server.Socket = *socketOverride
	}

	log := logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	log.Info("starting trustd",
		logger.String("version", version),
		logger.String("config", *configPath))

	var backend storage.Backend
	switch cfg.Cache.Backend {
	case "file":
		backend, err = storage.NewFile(cfg.Cache.Path)
		if err != nil {
			log.Fatal("failed to open cache directory", logger.Error(err))
		}
	case "memory":
		backend = storage.NewMemory()
	}

	certs := certstore.New()
	crls, err := crlcache.New(crlcache.Config{Backend: backend, Logger: log})
	if err != nil {
		log.Fatal("failed to initialize CRL cache", logger.Error(err))
	}
	metrics.SetCachedCRLs(float64(crls.Count()))

	srv := server.New(server.Config{
		Logger:      log,
		SocketPath:  cfg.Server.Socket,
		Version:     version,
		Certs:       certs,
		CRLs:        crls,
		OCSP:        ocsp.New(ocsp.Config{Logger: log, DefaultResponder: cfg.OCSP.DefaultResponder}),
		OCSPEnabled: cfg.OCSP.Enabled,

		ForceDefaultResponder: cfg.OCSP.ForceDefaultResponder,
		Keyservers:            cfg.Keyservers,
		HTTPProxy:             cfg.HTTP.Proxy,
		AllowCRLFetch:         cfg.HTTP.AllowCRLFetch,
	})

	if *stdio {
		if _, err := srv.ServeConn(stdioConn{}); err != nil {
			log.Error("stdio session failed", logger.Error(err))
			os.Exit(1)
		}
		return
	}

	var diagSrv *diag.Server
	if cfg.Diagnostics.Enabled {
		diagSrv, err = diag.NewServer(&diag.Config{
			SocketPath: cfg.Diagnostics.Socket,
			Version:    version,
			Logger:     log,
			Certs:      certs,
			CRLs:       crls,
		})
		if err != nil {
			log.Fatal("failed to create diagnostics server", logger.Error(err))
		}
		metrics.Enable()
		go func() {
			if err := diagSrv.Start(); err != nil {
				log.Error("diagnostics server failed", logger.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", logger.String("signal", sig.String()))
		srv.Shutdown()
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Error("server failed", logger.Error(err))
		os.Exit(1)
	}

	if diagSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = diagSrv.Stop(ctx)
	}
	log.Info("trustd stopped")
}

// stdioConn adapts the process's stdin/stdout to io.ReadWriter.
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
