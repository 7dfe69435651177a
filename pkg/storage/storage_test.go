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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fileBackend, err := NewFile(t.TempDir())
	require.NoError(t, err)
	return map[string]Backend{
		"memory": NewMemory(),
		"file":   fileBackend,
	}
}

func TestBackend_PutGet(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = b.Close() }()

			require.NoError(t, b.Put("crls/abc", []byte("der-bytes")))
			got, err := b.Get("crls/abc")
			require.NoError(t, err)
			assert.Equal(t, []byte("der-bytes"), got)
		})
	}
}

func TestBackend_GetNotFound(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = b.Close() }()

			_, err := b.Get("missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBackend_Delete(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = b.Close() }()

			require.NoError(t, b.Put("k", []byte("v")))
			require.NoError(t, b.Delete("k"))
			_, err := b.Get("k")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, b.Delete("k"), ErrNotFound)
		})
	}
}

func TestBackend_ListPrefix(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = b.Close() }()

			require.NoError(t, b.Put("crls/a", []byte("1")))
			require.NoError(t, b.Put("crls/b", []byte("2")))
			require.NoError(t, b.Put("certs/c", []byte("3")))

			keys, err := b.List("crls/")
			require.NoError(t, err)
			assert.Equal(t, []string{"crls/a", "crls/b"}, keys)

			all, err := b.List("")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestBackend_Closed(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Close())
			_, err := b.Get("k")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, b.Put("k", nil), ErrClosed)
		})
	}
}

func TestFileBackend_KeyEncoding(t *testing.T) {
	b, err := NewFile(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	// Keys with path-hostile characters must not escape the root.
	require.NoError(t, b.Put("crls/../../etc/passwd", []byte("x")))
	got, err := b.Get("crls/../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	keys, err := b.List("crls/")
	require.NoError(t, err)
	assert.Equal(t, []string{"crls/../../etc/passwd"}, keys)
}
