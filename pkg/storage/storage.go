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

// Package storage provides a small key-value storage abstraction used to
// persist cached CRLs and certificates across daemon restarts. Both an
// in-memory and a file-based implementation are provided.
package storage

import "errors"

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrClosed is returned when using a closed backend.
	ErrClosed = errors.New("storage: closed")
)

// Backend is a flat key-value store. Keys use "/" separated segments,
// e.g. "crls/<issuerhash>". All implementations must be thread-safe.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key, overwriting any existing
	// value.
	Put(key string, value []byte) error

	// Delete removes the key. Returns ErrNotFound if it does not exist.
	Delete(key string) error

	// List returns all keys with the given prefix, sorted.
	List(prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}
