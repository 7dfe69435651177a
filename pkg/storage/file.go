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
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	dirPerms  = 0700
	filePerms = 0600
)

// FileBackend stores each key as a file below a root directory. Key
// segments map to subdirectories; the leaf segment is hex-encoded so a
// key can never escape the root. Thread-safe.
type FileBackend struct {
	mu      sync.RWMutex
	rootDir string
	closed  bool
}

// NewFile creates a file backend rooted at rootDir, creating the
// directory if needed.
func NewFile(rootDir string) (*FileBackend, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("storage: root directory cannot be empty")
	}
	if err := os.MkdirAll(rootDir, dirPerms); err != nil {
		return nil, fmt.Errorf("storage: failed to create root directory: %w", err)
	}
	return &FileBackend{rootDir: rootDir}, nil
}

// Get retrieves the value for the given key.
func (f *FileBackend) Get(key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	data, err := os.ReadFile(f.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Put stores the value for the given key.
func (f *FileBackend) Put(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	path := f.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return fmt.Errorf("storage: failed to create directory for key %q: %w", key, err)
	}
	if err := os.WriteFile(path, value, filePerms); err != nil {
		return fmt.Errorf("storage: failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes the key and its value.
func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	err := os.Remove(f.keyToPath(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: failed to delete key %q: %w", key, err)
	}
	return nil
}

// List returns all keys with the given prefix, sorted.
func (f *FileBackend) List(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	var keys []string
	err := filepath.Walk(f.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		key, err := f.pathToKey(path)
		if err != nil {
			// Not one of ours; skip.
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the backend as closed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// keyToPath maps a key to a file path below the root. Every segment is
// hex-encoded so that path separators or dots in keys cannot traverse
// outside the root directory.
func (f *FileBackend) keyToPath(key string) string {
	segs := strings.Split(key, "/")
	enc := make([]string, len(segs))
	for i, s := range segs {
		enc[i] = hex.EncodeToString([]byte(s))
	}
	return filepath.Join(f.rootDir, filepath.Join(enc...))
}

func (f *FileBackend) pathToKey(path string) (string, error) {
	rel, err := filepath.Rel(f.rootDir, path)
	if err != nil {
		return "", err
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	dec := make([]string, len(segs))
	for i, s := range segs {
		b, err := hex.DecodeString(s)
		if err != nil {
			return "", err
		}
		dec[i] = string(b)
	}
	return strings.Join(dec, "/"), nil
}
