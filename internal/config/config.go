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
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
	Keyservers  []string          `yaml:"keyservers"`
	OCSP        OCSPConfig        `yaml:"ocsp"`
	HTTP        HTTPConfig        `yaml:"http"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// ServerConfig contains the protocol listener settings
type ServerConfig struct {
	// Socket is the unix socket the daemon listens on.
	Socket string `yaml:"socket"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig controls persistence of cached CRLs
type CacheConfig struct {
	// Backend selects the persistence backend: file or memory.
	Backend string `yaml:"backend"`
	// Path is the cache directory for the file backend.
	Path string `yaml:"path"`
}

// OCSPConfig controls OCSP querying
type OCSPConfig struct {
	Enabled bool `yaml:"enabled"`
	// DefaultResponder is asked when a certificate names no responder.
	DefaultResponder string `yaml:"default_responder"`
	// ForceDefaultResponder ignores responders embedded in certificates.
	ForceDefaultResponder bool `yaml:"force_default_responder"`
}

// HTTPConfig controls outbound HTTP behavior
type HTTPConfig struct {
	// Proxy overrides the proxy for outbound requests; empty uses the
	// environment.
	Proxy string `yaml:"proxy"`
	// AllowCRLFetch permits retrieving CRLs over HTTP/HTTPS.
	AllowCRLFetch bool `yaml:"allow_crl_fetch"`
}

// DiagnosticsConfig controls the health and metrics endpoint
type DiagnosticsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Socket is the unix socket serving /health and /metrics.
	Socket string `yaml:"socket"`
}

// DefaultConfig returns the configuration used when no config file is
// given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Socket: "/run/trustd/trustd.sock",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Backend: "file",
			Path:    "/var/lib/trustd",
		},
		OCSP: OCSPConfig{
			Enabled: true,
		},
		HTTP: HTTPConfig{
			AllowCRLFetch: true,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: false,
			Socket:  "/run/trustd/diag.sock",
		},
	}
}

// Load reads configuration from a YAML file and applies environment
// variable overrides
func Load(path string) (*Config, error) {
	// Read the config file
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML over the defaults
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration
func applyEnvOverrides(cfg *Config) {
	if socket := os.Getenv("TRUSTD_SOCKET"); socket != "" {
		cfg.Server.Socket = socket
	}
	if level := os.Getenv("TRUSTD_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("TRUSTD_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if dir := os.Getenv("TRUSTD_CACHE_DIR"); dir != "" {
		cfg.Cache.Path = dir
	}
	if proxy := os.Getenv("TRUSTD_HTTP_PROXY"); proxy != "" {
		cfg.HTTP.Proxy = proxy
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Socket == "" {
		return fmt.Errorf("server socket must be specified")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	switch c.Cache.Backend {
	case "memory":
	case "file":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache path is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be file or memory)", c.Cache.Backend)
	}

	for _, ks := range c.Keyservers {
		u, err := url.Parse(ks)
		if err != nil {
			return fmt.Errorf("invalid keyserver URI %q: %w", ks, err)
		}
		switch u.Scheme {
		case "hkp", "hkps", "http", "https":
		default:
			return fmt.Errorf("invalid keyserver URI %q: unsupported scheme", ks)
		}
	}

	if c.OCSP.ForceDefaultResponder && c.OCSP.DefaultResponder == "" {
		return fmt.Errorf("ocsp default_responder is required with force_default_responder")
	}

	if c.Diagnostics.Enabled && c.Diagnostics.Socket == "" {
		return fmt.Errorf("diagnostics socket is required when diagnostics are enabled")
	}

	if c.HTTP.Proxy != "" {
		if _, err := url.Parse(c.HTTP.Proxy); err != nil {
			return fmt.Errorf("invalid http proxy %q: %w", c.HTTP.Proxy, err)
		}
	}

	return nil
}
