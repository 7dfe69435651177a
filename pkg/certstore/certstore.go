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

// Package certstore implements the in-memory certificate cache consulted
// by the command handlers. Certificates are keyed by the SHA-1
// fingerprint of their DER encoding and can additionally be found by
// subject key identifier, subject DN, email address, or a substring of
// the subject common name.
package certstore

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// DefaultMaxMatches caps the certificates a single pattern query may
// yield before the store signals truncation.
const DefaultMaxMatches = 100

// Fingerprint is the SHA-1 digest of a certificate's DER encoding.
type Fingerprint [20]byte

// FingerprintOf computes the cache key for a certificate.
func FingerprintOf(cert *x509.Certificate) Fingerprint {
	return sha1.Sum(cert.Raw)
}

// String renders the fingerprint as uppercase hex without separators.
func (f Fingerprint) String() string {
	return strings.ToUpper(hex.EncodeToString(f[:]))
}

// Store is the certificate cache. Thread-safe.
type Store struct {
	mu    sync.RWMutex
	byFpr map[Fingerprint]*x509.Certificate
	order []Fingerprint // insertion order, for deterministic iteration

	// MaxMatches caps results per ByPattern call; zero means
	// DefaultMaxMatches.
	MaxMatches int
}

// New creates an empty certificate store.
func New() *Store {
	return &Store{byFpr: make(map[Fingerprint]*x509.Certificate)}
}

// Parse decodes DER bytes into a certificate, mapping parse failures to
// ErrCertInvalid.
func Parse(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertInvalid, err)
	}
	return cert, nil
}

// Put inserts a certificate. Re-inserting the same certificate is a
// no-op.
func (s *Store) Put(cert *x509.Certificate) error {
	fpr := FingerprintOf(cert)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byFpr[fpr]; ok {
		return nil
	}
	s.byFpr[fpr] = cert
	s.order = append(s.order, fpr)
	return nil
}

// ByFingerprint returns the cached certificate with the given
// fingerprint, or nil if it is not cached.
func (s *Store) ByFingerprint(fpr Fingerprint) *x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byFpr[fpr]
}

// BySubjectKeyID returns the first cached certificate carrying the given
// subject key identifier, or nil.
func (s *Store) BySubjectKeyID(ski []byte) *x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fpr := range s.order {
		cert := s.byFpr[fpr]
		if len(cert.SubjectKeyId) > 0 && string(cert.SubjectKeyId) == string(ski) {
			return cert
		}
	}
	return nil
}

// FindIssuer returns a cached certificate whose subject matches CERT's
// issuer and whose key signed it, or nil.
func (s *Store) FindIssuer(cert *x509.Certificate) *x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fpr := range s.order {
		candidate := s.byFpr[fpr]
		if string(candidate.RawSubject) != string(cert.RawIssuer) {
			continue
		}
		if err := cert.CheckSignatureFrom(candidate); err == nil {
			return candidate
		}
	}
	return nil
}

// All returns the cached certificates in insertion order.
func (s *Store) All() []*x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*x509.Certificate, 0, len(s.order))
	for _, fpr := range s.order {
		out = append(out, s.byFpr[fpr])
	}
	return out
}

// Len reports the number of cached certificates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byFpr)
}

// ByPattern yields every cached certificate matching PATTERN to FN, in
// insertion order. Supported pattern forms:
//
//	40 hex digits        SHA-1 fingerprint
//	<addr@example.org>   email address (subject alternative name)
//	/CN=...              exact subject DN string
//	anything else        case-insensitive substring of the subject CN
//
// Patterns starting with "#", "&" or "+" belong to lookup methods this
// store does not implement and yield ErrInvalidName. ErrNoData is
// returned when nothing matched; ErrTruncated when the result cap was
// hit after yielding the capped results. An error from FN aborts the
// iteration and is returned as-is.
func (s *Store) ByPattern(pattern string, fn func(*x509.Certificate) error) error {
	match, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	s.mu.RLock()
	certs := make([]*x509.Certificate, 0, len(s.order))
	for _, fpr := range s.order {
		certs = append(certs, s.byFpr[fpr])
	}
	maxMatches := s.MaxMatches
	s.mu.RUnlock()

	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}

	count := 0
	for _, cert := range certs {
		if !match(cert) {
			continue
		}
		if count >= maxMatches {
			return ErrTruncated
		}
		if err := fn(cert); err != nil {
			return err
		}
		count++
	}
	if count == 0 {
		return ErrNoData
	}
	return nil
}

func compilePattern(pattern string) (func(*x509.Certificate) bool, error) {
	if pattern == "" {
		return nil, ErrInvalidName
	}
	switch pattern[0] {
	case '#', '&', '+':
		// Serial/issuer, keygrip and word-list patterns are not
		// supported by the in-memory store.
		return nil, ErrInvalidName
	}

	if isHexString(pattern) && len(pattern) == 40 {
		var fpr Fingerprint
		raw, err := hex.DecodeString(pattern)
		if err != nil {
			return nil, ErrInvalidName
		}
		copy(fpr[:], raw)
		return func(cert *x509.Certificate) bool {
			return FingerprintOf(cert) == fpr
		}, nil
	}

	if strings.HasPrefix(pattern, "<") && strings.HasSuffix(pattern, ">") {
		email := strings.ToLower(pattern[1 : len(pattern)-1])
		return func(cert *x509.Certificate) bool {
			for _, a := range cert.EmailAddresses {
				if strings.ToLower(a) == email {
					return true
				}
			}
			return false
		}, nil
	}

	if strings.HasPrefix(pattern, "/") {
		subject := pattern[1:]
		return func(cert *x509.Certificate) bool {
			return cert.Subject.String() == subject
		}, nil
	}

	substr := strings.ToLower(pattern)
	return func(cert *x509.Certificate) bool {
		return strings.Contains(strings.ToLower(cert.Subject.CommonName), substr)
	}, nil
}

func isHexString(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return len(s) > 0
}
