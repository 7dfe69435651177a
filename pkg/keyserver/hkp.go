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

package keyserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
)

// MaxResponseSize bounds a keyserver's answer. OpenPGP keyblocks with
// many third-party signatures grow large.
const MaxResponseSize = 20 * 1024 * 1024

// hkpPort is the IANA port for HKP when the URI names none.
const hkpPort = "11371"

// Options carries the session-scoped transport settings for keyserver
// requests.
type Options struct {
	// Proxy overrides the HTTP proxy; empty uses the environment.
	Proxy string

	// Timeout bounds one request; zero means no timeout.
	Timeout time.Duration
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Logger receives diagnostics; nil uses the default adapter.
	Logger logger.Logger

	// Transport overrides the HTTP transport used for requests.
	Transport http.RoundTripper
}

// Client speaks HKP to keyservers. Thread-safe.
type Client struct {
	log       logger.Logger
	transport http.RoundTripper
}

// NewClient creates an HKP client.
func NewClient(cfg ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Client{log: log, transport: cfg.Transport}
}

// Search runs a machine-readable index query for PATTERN, asking each
// server in order until one answers.
func (c *Client) Search(ctx context.Context, servers []Entry, pattern string, opts Options) ([]byte, error) {
	return c.lookup(ctx, servers, pattern, "index", opts)
}

// Get retrieves the keyblocks matching PATTERN, asking each server in
// order until one answers.
func (c *Client) Get(ctx context.Context, servers []Entry, pattern string, opts Options) ([]byte, error) {
	return c.lookup(ctx, servers, pattern, "get", opts)
}

// Fetch retrieves a keyblock from a direct URL, bypassing the
// configured keyservers.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrBadURI, rawURL)
	}
	return c.do(ctx, http.MethodGet, rawURL, "", opts)
}

// Put uploads an armored keyblock to every server in the list. It
// succeeds when at least one server accepted the key.
func (c *Client) Put(ctx context.Context, servers []Entry, keyblock []byte, opts Options) error {
	if len(servers) == 0 {
		return ErrNoKeyserver
	}
	form := url.Values{"keytext": {string(keyblock)}}.Encode()

	var lastErr error
	accepted := 0
	for _, server := range servers {
		target := baseURL(server) + "/pks/add"
		_, err := c.do(ctx, http.MethodPost, target, form, opts)
		if err != nil {
			c.log.Warn("keyserver rejected upload",
				logger.String("keyserver", server.URI), logger.Error(err))
			lastErr = err
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return lastErr
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, servers []Entry, pattern, op string, opts Options) ([]byte, error) {
	if len(servers) == 0 {
		return nil, ErrNoKeyserver
	}
	query := url.Values{
		"op":      {op},
		"options": {"mr"},
		"search":  {pattern},
	}
	var lastErr error
	for _, server := range servers {
		target := baseURL(server) + "/pks/lookup?" + query.Encode()
		body, err := c.do(ctx, http.MethodGet, target, "", opts)
		if err != nil {
			c.log.Warn("keyserver lookup failed",
				logger.String("keyserver", server.URI), logger.Error(err))
			lastErr = err
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, target, form string, opts Options) ([]byte, error) {
	client, err := c.httpClient(opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	var body io.Reader
	if form != "" {
		body = strings.NewReader(form)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetchFailed, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrFetchFailed, MaxResponseSize)
	}
	return data, nil
}

func (c *Client) httpClient(opts Options) (*http.Client, error) {
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

// baseURL maps a keyserver entry to the HTTP origin to talk to: hkp
// becomes http on port 11371, hkps becomes https.
func baseURL(e Entry) string {
	scheme := e.Parsed.Scheme
	host := e.Parsed.Host
	switch scheme {
	case "hkp":
		scheme = "http"
		if e.Parsed.Port() == "" {
			host += ":" + hkpPort
		}
	case "hkps":
		scheme = "https"
	}
	return scheme + "://" + host
}
