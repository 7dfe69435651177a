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

package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-trustd/internal/assuan"
	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
	"github.com/jeremyhahn/go-trustd/pkg/crlcache"
	"github.com/jeremyhahn/go-trustd/pkg/keyserver"
	"github.com/jeremyhahn/go-trustd/pkg/ocsp"
)

const (
	// defaultNetTimeout bounds one outbound network round trip.
	defaultNetTimeout = 30 * time.Second

	// quickNetTimeout is used when a command carries --quick.
	quickNetTimeout = 10 * time.Second
)

// session holds the per-connection state. Every command handler is a
// method on it; nothing session-scoped is reachable any other way.
type session struct {
	id  string
	log logger.Logger
	srv *Server

	// keyservers is the session keyserver registry. RESET never clears
	// it.
	keyservers *keyserver.Registry

	// forceCRLRefresh makes the next CRL query drop the cached CRL
	// first. Set via OPTION, cleared by RESET.
	forceCRLRefresh bool

	// httpProxy overrides the proxy for this session's fetches.
	httpProxy string

	// allowHTTPCRL permits CRL retrieval over HTTP for this session.
	allowHTTPCRL bool

	// stopme requests daemon shutdown once the session ends.
	stopme bool
}

func (s *Server) newSession() *session {
	id := uuid.NewString()
	return &session{
		id:           id,
		log:          s.log.With(logger.String("session_id", id)),
		srv:          s,
		keyservers:   keyserver.NewRegistry(),
		httpProxy:    s.cfg.HTTPProxy,
		allowHTTPCRL: s.cfg.AllowCRLFetch,
	}
}

// option applies an "OPTION key=value" line to the session.
func (sess *session) option(key, value string) error {
	switch key {
	case "force-crl-refresh":
		sess.forceCRLRefresh = value != "0"
	case "http-proxy":
		if value == "" || value == "none" {
			sess.httpProxy = ""
		} else {
			sess.httpProxy = value
		}
	case "http-crl":
		sess.allowHTTPCRL = value != "0"
	case "audit-events":
		// Accepted for client compatibility; there is no audit channel.
	default:
		return assuan.Errorf(assuan.CodeUnknownOption, "unknown option %q", key)
	}
	sess.log.Debug("session option set",
		logger.String("key", key), logger.String("value", value))
	return nil
}

// fetchOpts carries the session transport settings into the CRL cache.
func (sess *session) fetchOpts() crlcache.FetchOptions {
	return crlcache.FetchOptions{
		Proxy:     sess.httpProxy,
		Timeout:   defaultNetTimeout,
		AllowHTTP: sess.allowHTTPCRL,
	}
}

func (sess *session) ocspOpts(forceDefault bool) ocsp.CheckOptions {
	return ocsp.CheckOptions{
		ForceDefaultResponder: forceDefault || sess.srv.cfg.ForceDefaultResponder,
		Proxy:                 sess.httpProxy,
		Timeout:               defaultNetTimeout,
	}
}

func (sess *session) ksOpts(quick bool) keyserver.Options {
	timeout := defaultNetTimeout
	if quick {
		timeout = quickNetTimeout
	}
	return keyserver.Options{Proxy: sess.httpProxy, Timeout: timeout}
}

// seededKeyservers returns the session keyserver list, seeding it from
// the daemon configuration on first use.
func (sess *session) seededKeyservers() ([]keyserver.Entry, error) {
	if err := sess.keyservers.EnsureSeeded(sess.srv.cfg.Keyservers); err != nil {
		return nil, assuan.WithCode(assuan.CodeParameter, err)
	}
	return sess.keyservers.List(), nil
}

// fingerprintFromLine scans LINE up to the first space for a SHA-1
// fingerprint: pairs of hex digits with optional colon separators. Any
// other character, or a length other than 20 bytes, means no
// fingerprint is present, which is not an error.
func fingerprintFromLine(line string) (certstore.Fingerprint, bool) {
	var fpr certstore.Fingerprint
	n := 0
	i := 0
	for i < len(line) && line[i] != ' ' {
		if line[i] == ':' {
			i++
			continue
		}
		if i+1 >= len(line) || line[i+1] == ' ' {
			return certstore.Fingerprint{}, false
		}
		hi, ok1 := hexNibble(line[i])
		lo, ok2 := hexNibble(line[i+1])
		if !ok1 || !ok2 || n >= len(fpr) {
			return certstore.Fingerprint{}, false
		}
		fpr[n] = hi<<4 | lo
		n++
		i += 2
	}
	if n != len(fpr) {
		return certstore.Fingerprint{}, false
	}
	return fpr, true
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if _, ok := hexNibble(s[i]); !ok {
			return false
		}
	}
	return true
}
