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

package validate

import "errors"

var (
	// ErrNotTrusted is returned when the chain's root is not trusted.
	ErrNotTrusted = errors.New("validate: root certificate not trusted")

	// ErrCertExpired is returned when a chain certificate is outside its
	// validity window.
	ErrCertExpired = errors.New("validate: certificate expired or not yet valid")

	// ErrMissingIssuer is returned when no issuer certificate for a
	// chain link can be found.
	ErrMissingIssuer = errors.New("validate: issuer certificate not found")

	// ErrBadCert is returned when a chain link fails signature or usage
	// checks.
	ErrBadCert = errors.New("validate: bad certificate")

	// ErrChainTooLong is returned when issuer chasing exceeds the depth
	// limit.
	ErrChainTooLong = errors.New("validate: certificate chain too long")
)
