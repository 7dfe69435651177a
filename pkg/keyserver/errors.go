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

import "errors"

var (
	// ErrBadURI is returned when a keyserver URI cannot be parsed or
	// uses an unsupported scheme.
	ErrBadURI = errors.New("keyserver: bad URI")

	// ErrNoKeyserver is returned when an operation runs with an empty
	// keyserver list.
	ErrNoKeyserver = errors.New("keyserver: no keyserver configured")

	// ErrNotFound is returned when no keyserver has the requested key.
	ErrNotFound = errors.New("keyserver: key not found")

	// ErrFetchFailed is returned when all keyservers failed to answer.
	ErrFetchFailed = errors.New("keyserver: fetch failed")
)
