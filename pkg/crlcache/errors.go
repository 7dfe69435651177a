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

package crlcache

import "errors"

var (
	// ErrCertRevoked is returned when a certificate's serial is listed on
	// the issuer's CRL.
	ErrCertRevoked = errors.New("crlcache: certificate revoked")

	// ErrNoCRLKnown is returned when no usable CRL is cached for the
	// issuer in question.
	ErrNoCRLKnown = errors.New("crlcache: no CRL known")

	// ErrCRLInvalid is returned when CRL bytes cannot be parsed.
	ErrCRLInvalid = errors.New("crlcache: invalid CRL")

	// ErrFetchFailed is returned when a CRL could not be retrieved from
	// its distribution point or URL.
	ErrFetchFailed = errors.New("crlcache: fetch failed")

	// ErrHTTPDisabled is returned when retrieving CRLs over HTTP has been
	// switched off for the session.
	ErrHTTPDisabled = errors.New("crlcache: CRL retrieval via HTTP disabled")
)
