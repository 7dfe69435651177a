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

package certstore

import "errors"

var (
	// ErrNoData is returned when a pattern yields no certificates.
	ErrNoData = errors.New("certstore: no data")

	// ErrInvalidName is returned for a pattern the store cannot
	// interpret.
	ErrInvalidName = errors.New("certstore: invalid pattern")

	// ErrTruncated is returned by ByPattern after the per-query result
	// cap has been reached; the certificates yielded so far are valid.
	ErrTruncated = errors.New("certstore: result set truncated")

	// ErrCertInvalid is returned when certificate bytes cannot be parsed.
	ErrCertInvalid = errors.New("certstore: invalid certificate")
)
