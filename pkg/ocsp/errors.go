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

package ocsp

import "errors"

var (
	// ErrCertRevoked is returned when the responder reports the
	// certificate as revoked.
	ErrCertRevoked = errors.New("ocsp: certificate revoked")

	// ErrStatusUnknown is returned when the responder does not know the
	// certificate.
	ErrStatusUnknown = errors.New("ocsp: certificate status unknown")

	// ErrNoResponder is returned when neither the certificate nor the
	// configuration names a responder to ask.
	ErrNoResponder = errors.New("ocsp: no responder")

	// ErrFetchFailed is returned when the responder could not be reached
	// or answered with an HTTP error.
	ErrFetchFailed = errors.New("ocsp: fetch failed")

	// ErrResponseInvalid is returned when the responder's answer cannot
	// be parsed or fails signature verification.
	ErrResponseInvalid = errors.New("ocsp: invalid response")

	// ErrResponseExpired is returned when the responder's answer is past
	// its next-update time.
	ErrResponseExpired = errors.New("ocsp: response expired")
)
