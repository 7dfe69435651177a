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

// Package crlcache caches certificate revocation lists keyed by the
// SHA-1 hash of the issuer DN and answers revocation queries against
// them. CRLs enter the cache from local files, direct URLs, or the
// distribution points of a certificate supplied by the client.
package crlcache

import (
	"context"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
	"github.com/jeremyhahn/go-trustd/pkg/storage"
)

// MaxCRLSize bounds a fetched CRL. Real-world CRLs of busy CAs reach
// several megabytes.
const MaxCRLSize = 16 * 1024 * 1024

const storagePrefix = "crls/"

// Status is the outcome of a revocation query.
type Status int

const (
	// StatusValid means the serial is not on the issuer's CRL.
	StatusValid Status = iota

	// StatusInvalid means the serial is listed as revoked.
	StatusInvalid

	// StatusDontKnow means no CRL for the issuer is cached.
	StatusDontKnow

	// StatusCantUse means a CRL is cached but may not be used, e.g.
	// because its next-update time has passed.
	StatusCantUse
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusDontKnow:
		return "dontknow"
	case StatusCantUse:
		return "cantuse"
	default:
		return "unknown"
	}
}

// FetchOptions carries the session-scoped transport settings for CRL
// retrieval.
type FetchOptions struct {
	// Proxy overrides the HTTP proxy; empty uses the environment.
	Proxy string

	// Timeout bounds one retrieval; zero means no timeout.
	Timeout time.Duration

	// AllowHTTP permits retrieving CRLs over HTTP/HTTPS. When false,
	// distribution-point and URL fetches fail with ErrHTTPDisabled.
	AllowHTTP bool
}

// Config configures a Cache.
type Config struct {
	// Backend persists CRLs across restarts; nil disables persistence.
	Backend storage.Backend

	// Logger receives diagnostics; nil uses the default adapter.
	Logger logger.Logger

	// Transport overrides the HTTP transport used for fetches.
	Transport http.RoundTripper
}

type entry struct {
	issuerHash string
	list       *x509.RevocationList
	revoked    map[string]struct{}
	source     string
	loadedAt   time.Time
}

// Cache is the CRL cache. Thread-safe.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	backend   storage.Backend
	log       logger.Logger
	transport http.RoundTripper
	now       func() time.Time
}

// New creates a cache, loading any CRLs persisted in the backend.
func New(cfg Config) (*Cache, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	c := &Cache{
		entries:   make(map[string]*entry),
		backend:   cfg.Backend,
		log:       log,
		transport: cfg.Transport,
		now:       time.Now,
	}
	if c.backend != nil {
		keys, err := c.backend.List(storagePrefix)
		if err != nil {
			return nil, fmt.Errorf("crlcache: failed to list persisted CRLs: %w", err)
		}
		for _, key := range keys {
			der, err := c.backend.Get(key)
			if err != nil {
				continue
			}
			if err := c.insertLocked(key, der, false); err != nil {
				log.Warn("dropping unparsable persisted CRL",
					logger.String("key", key), logger.Error(err))
				_ = c.backend.Delete(key)
			}
		}
	}
	return c, nil
}

// IssuerHash computes the cache key for a certificate's issuer: the
// SHA-1 hash of the DER-encoded issuer DN, in uppercase hex.
func IssuerHash(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.RawIssuer)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// SerialHex renders a serial number the way the protocol transports it.
func SerialHex(serial *big.Int) string {
	return strings.ToUpper(serial.Text(16))
}

// IsValid answers a revocation query for (issuerHash, serial). With
// force set, any cached CRL for the issuer is dropped first so that the
// caller's retry machinery loads a fresh one; the immediate answer is
// then StatusDontKnow.
func (c *Cache) IsValid(issuerHash, serial string, force bool) Status {
	key, ok := normalizeHash(issuerHash)
	if !ok {
		return StatusDontKnow
	}
	serialKey, ok := normalizeSerial(serial)
	if !ok {
		return StatusDontKnow
	}

	if force {
		c.mu.Lock()
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			if c.backend != nil {
				_ = c.backend.Delete(storagePrefix + key)
			}
		}
		c.mu.Unlock()
		return StatusDontKnow
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return StatusDontKnow
	}
	if !e.list.NextUpdate.IsZero() && e.list.NextUpdate.Before(c.now()) {
		return StatusCantUse
	}
	if _, revoked := e.revoked[serialKey]; revoked {
		return StatusInvalid
	}
	return StatusValid
}

// CertIsValid checks CERT against the CRL of its issuer. StatusDontKnow
// and StatusCantUse both map to ErrNoCRLKnown; StatusInvalid maps to
// ErrCertRevoked.
func (c *Cache) CertIsValid(cert *x509.Certificate, force bool) error {
	switch c.IsValid(IssuerHash(cert), SerialHex(cert.SerialNumber), force) {
	case StatusValid:
		return nil
	case StatusInvalid:
		return ErrCertRevoked
	default:
		return ErrNoCRLKnown
	}
}

// Insert parses DER bytes as a CRL and adds it to the cache, persisting
// it when a backend is configured. SOURCE records where the CRL came
// from for LISTCRLS output.
func (c *Cache) Insert(source string, der []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(source, der, true)
}

func (c *Cache) insertLocked(source string, der []byte, persist bool) error {
	list, err := x509.ParseRevocationList(der)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCRLInvalid, err)
	}
	sum := sha1.Sum(list.RawIssuer)
	key := strings.ToUpper(hex.EncodeToString(sum[:]))

	revoked := make(map[string]struct{}, len(list.RevokedCertificateEntries))
	for _, rc := range list.RevokedCertificateEntries {
		revoked[SerialHex(rc.SerialNumber)] = struct{}{}
	}
	c.entries[key] = &entry{
		issuerHash: key,
		list:       list,
		revoked:    revoked,
		source:     source,
		loadedAt:   c.now(),
	}
	if persist && c.backend != nil {
		if err := c.backend.Put(storagePrefix+key, der); err != nil {
			c.log.Warn("failed to persist CRL", logger.String("issuer_hash", key), logger.Error(err))
		}
	}
	return nil
}

// Load reads a CRL from a local file, accepting DER or a PEM "X509 CRL"
// block.
func (c *Cache) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("crlcache: failed to read %q: %w", path, err)
	}
	if block, _ := pem.Decode(data); block != nil && block.Type == "X509 CRL" {
		data = block.Bytes
	}
	return c.Insert(path, data)
}

// FetchAndInsert retrieves a CRL from a direct URL and inserts it.
func (c *Cache) FetchAndInsert(ctx context.Context, rawURL string, opts FetchOptions) error {
	der, err := c.fetch(ctx, rawURL, opts)
	if err != nil {
		return err
	}
	return c.Insert(rawURL, der)
}

// ReloadCRL loads fresh CRLs for CERT from its distribution points,
// stopping at the first point that succeeds. A certificate without
// usable distribution points yields ErrNoCRLKnown.
func (c *Cache) ReloadCRL(ctx context.Context, cert *x509.Certificate, opts FetchOptions) error {
	var lastErr error
	for _, dp := range cert.CRLDistributionPoints {
		u, err := url.Parse(dp)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		der, err := c.fetch(ctx, dp, opts)
		if err != nil {
			c.log.Warn("CRL distribution point fetch failed",
				logger.String("url", dp), logger.Error(err))
			lastErr = err
			continue
		}
		if err := c.Insert(dp, der); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrNoCRLKnown
}

// List writes a readable dump of the cached CRLs.
func (c *Cache) List(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.sortedEntries() {
		next := "none"
		if !e.list.NextUpdate.IsZero() {
			next = e.list.NextUpdate.UTC().Format(time.RFC3339)
		}
		_, err := fmt.Fprintf(w,
			"Issuer: %s\nIssuerHash: %s\nSource: %s\nThisUpdate: %s\nNextUpdate: %s\nEntries: %d\n",
			e.list.Issuer.String(), e.issuerHash, e.source,
			e.list.ThisUpdate.UTC().Format(time.RFC3339), next, len(e.revoked))
		if err != nil {
			return err
		}
		for serial := range e.revoked {
			if _, err := fmt.Fprintf(w, "  revoked: %s\n", serial); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// Count reports the number of cached CRLs.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) sortedEntries() []*entry {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	// Insertion order is not tracked; sort by issuer hash for stable
	// output.
	sort.Strings(keys)
	out := make([]*entry, len(keys))
	for i, k := range keys {
		out[i] = c.entries[k]
	}
	return out
}

func (c *Cache) fetch(ctx context.Context, rawURL string, opts FetchOptions) ([]byte, error) {
	if !opts.AllowHTTP {
		return nil, ErrHTTPDisabled
	}
	client, err := c.httpClient(opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetchFailed, resp.Status)
	}
	der, err := io.ReadAll(io.LimitReader(resp.Body, MaxCRLSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(der) > MaxCRLSize {
		return nil, fmt.Errorf("%w: CRL exceeds %d bytes", ErrFetchFailed, MaxCRLSize)
	}
	return der, nil
}

func (c *Cache) httpClient(opts FetchOptions) (*http.Client, error) {
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

func normalizeHash(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 40 {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return "", false
		}
	}
	return s, true
}

func normalizeSerial(s string) (string, bool) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 16)
	if !ok {
		return "", false
	}
	return SerialHex(n), true
}
