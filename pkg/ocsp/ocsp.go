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

// Package ocsp asks OCSP responders for the revocation status of a
// certificate. The responder is taken from the certificate's authority
// information access extension, falling back to a configured default.
package ocsp

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	xocsp "golang.org/x/crypto/ocsp"

	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
)

// MaxResponseSize bounds an OCSP responder's answer.
const MaxResponseSize = 1 * 1024 * 1024

// Config configures a Client.
type Config struct {
	// Logger receives diagnostics; nil uses the default adapter.
	Logger logger.Logger

	// Transport overrides the HTTP transport used for requests.
	Transport http.RoundTripper

	// DefaultResponder is asked when a certificate carries no OCSP URL,
	// or always when a check forces the default responder.
	DefaultResponder string
}

// CheckOptions carries the session-scoped settings for one check.
type CheckOptions struct {
	// ForceDefaultResponder ignores the certificate's own OCSP URLs and
	// asks only the configured default responder.
	ForceDefaultResponder bool

	// Proxy overrides the HTTP proxy; empty uses the environment.
	Proxy string

	// Timeout bounds one request; zero means no timeout.
	Timeout time.Duration
}

// Client queries OCSP responders. Thread-safe.
type Client struct {
	log              logger.Logger
	transport        http.RoundTripper
	defaultResponder string
	now              func() time.Time
}

// New creates an OCSP client.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		log:              log,
		transport:        cfg.Transport,
		defaultResponder: cfg.DefaultResponder,
		now:              time.Now,
	}
}

// Check asks a responder whether CERT, issued by ISSUER, has been
// revoked. A good status yields nil; revoked yields ErrCertRevoked;
// a responder that does not know the certificate yields
// ErrStatusUnknown.
func (c *Client) Check(ctx context.Context, cert, issuer *x509.Certificate, opts CheckOptions) error {
	responder, err := c.responderFor(cert, opts)
	if err != nil {
		return err
	}

	reqDER, err := xocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return fmt.Errorf("ocsp: failed to create request: %w", err)
	}

	body, err := c.post(ctx, responder, reqDER, opts)
	if err != nil {
		return err
	}

	resp, err := xocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if !resp.NextUpdate.IsZero() && resp.NextUpdate.Before(c.now()) {
		return fmt.Errorf("%w: next update was %s", ErrResponseExpired,
			resp.NextUpdate.UTC().Format(time.RFC3339))
	}

	switch resp.Status {
	case xocsp.Good:
		c.log.Debug("OCSP responder reports good",
			logger.String("responder", responder),
			logger.String("serial", cert.SerialNumber.Text(16)))
		return nil
	case xocsp.Revoked:
		return fmt.Errorf("%w at %s (reason %d)", ErrCertRevoked,
			resp.RevokedAt.UTC().Format(time.RFC3339), resp.RevocationReason)
	default:
		return ErrStatusUnknown
	}
}

// responderFor picks the responder URL for a certificate, honoring the
// force-default-responder setting.
func (c *Client) responderFor(cert *x509.Certificate, opts CheckOptions) (string, error) {
	if opts.ForceDefaultResponder {
		if c.defaultResponder == "" {
			return "", ErrNoResponder
		}
		return c.defaultResponder, nil
	}
	for _, server := range cert.OCSPServer {
		u, err := url.Parse(server)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		return server, nil
	}
	if c.defaultResponder != "" {
		return c.defaultResponder, nil
	}
	return "", ErrNoResponder
}

func (c *Client) post(ctx context.Context, responder string, reqDER []byte, opts CheckOptions) ([]byte, error) {
	client, err := c.httpClient(opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responder, bytes.NewReader(reqDER))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetchFailed, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrFetchFailed, MaxResponseSize)
	}
	return body, nil
}

func (c *Client) httpClient(opts CheckOptions) (*http.Client, error) {
	transport := c.transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Proxy != "" {
			proxyURL, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("%w: bad proxy %q: %v", ErrFetchFailed, opts.Proxy, err)
			}
			base.Proxy = http.ProxyURL(proxyURL)
		}
		transport = base
	}
	return &http.Client{Transport: transport}, nil
}
