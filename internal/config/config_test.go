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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return path
}

// TestLoad_Success tests successful loading of a valid config file
func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
server:
  socket: "/tmp/trustd-test.sock"

logging:
  level: "debug"
  format: "text"

cache:
  backend: "file"
  path: "/tmp/trustd-cache"

keyservers:
  - "hkps://keys.example.org"
  - "hkp://fallback.example.org"

ocsp:
  enabled: true
  default_responder: "http://ocsp.example.org"

http:
  proxy: "http://proxy.example.org:3128"
  allow_crl_fetch: true

diagnostics:
  enabled: true
  socket: "/tmp/trustd-diag.sock"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Server.Socket != "/tmp/trustd-test.sock" {
		t.Errorf("Server.Socket = %v, want /tmp/trustd-test.sock", cfg.Server.Socket)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %v, want text", cfg.Logging.Format)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("Cache.Backend = %v, want file", cfg.Cache.Backend)
	}
	if len(cfg.Keyservers) != 2 {
		t.Fatalf("len(Keyservers) = %d, want 2", len(cfg.Keyservers))
	}
	if cfg.Keyservers[0] != "hkps://keys.example.org" {
		t.Errorf("Keyservers[0] = %v, want hkps://keys.example.org", cfg.Keyservers[0])
	}
	if !cfg.OCSP.Enabled {
		t.Error("OCSP.Enabled = false, want true")
	}
	if cfg.OCSP.DefaultResponder != "http://ocsp.example.org" {
		t.Errorf("OCSP.DefaultResponder = %v, want http://ocsp.example.org", cfg.OCSP.DefaultResponder)
	}
	if cfg.HTTP.Proxy != "http://proxy.example.org:3128" {
		t.Errorf("HTTP.Proxy = %v, want http://proxy.example.org:3128", cfg.HTTP.Proxy)
	}
	if !cfg.Diagnostics.Enabled {
		t.Error("Diagnostics.Enabled = false, want true")
	}
}

// TestLoad_DefaultsFillGaps tests that omitted sections keep defaults
func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	defaults := DefaultConfig()
	if cfg.Server.Socket != defaults.Server.Socket {
		t.Errorf("Server.Socket = %v, want default %v", cfg.Server.Socket, defaults.Server.Socket)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaults.Logging.Format {
		t.Errorf("Logging.Format = %v, want default %v", cfg.Logging.Format, defaults.Logging.Format)
	}
	if cfg.Cache.Backend != defaults.Cache.Backend {
		t.Errorf("Cache.Backend = %v, want default %v", cfg.Cache.Backend, defaults.Cache.Backend)
	}
}

// TestLoad_FileNotFound tests loading a missing file
func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}

// TestLoad_BadYAML tests loading an unparsable file
func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: valid")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}

// TestLoad_EnvOverrides tests environment variable overrides
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRUSTD_SOCKET", "/tmp/env-override.sock")
	t.Setenv("TRUSTD_LOG_LEVEL", "error")
	t.Setenv("TRUSTD_CACHE_DIR", "/tmp/env-cache")

	path := writeConfig(t, `
server:
  socket: "/tmp/from-file.sock"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Server.Socket != "/tmp/env-override.sock" {
		t.Errorf("Server.Socket = %v, want /tmp/env-override.sock", cfg.Server.Socket)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %v, want error", cfg.Logging.Level)
	}
	if cfg.Cache.Path != "/tmp/env-cache" {
		t.Errorf("Cache.Path = %v, want /tmp/env-cache", cfg.Cache.Path)
	}
}

// TestValidate covers the validation rules
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"memory backend without path", func(c *Config) {
			c.Cache.Backend = "memory"
			c.Cache.Path = ""
		}, false},
		{"empty socket", func(c *Config) { c.Server.Socket = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "redis" }, true},
		{"file backend without path", func(c *Config) { c.Cache.Path = "" }, true},
		{"bad keyserver scheme", func(c *Config) {
			c.Keyservers = []string{"ldap://keys.example.org"}
		}, true},
		{"good keyserver", func(c *Config) {
			c.Keyservers = []string{"hkps://keys.example.org"}
		}, false},
		{"force default responder without responder", func(c *Config) {
			c.OCSP.ForceDefaultResponder = true
		}, true},
		{"diagnostics without socket", func(c *Config) {
			c.Diagnostics.Enabled = true
			c.Diagnostics.Socket = ""
		}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
