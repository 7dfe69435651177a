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

// Package keyserver maintains per-session keyserver lists and speaks
// the HKP protocol to them.
package keyserver

import (
	"fmt"
	"net/url"
	"sync"
)

// DefaultKeyserver is used when neither the session nor the
// configuration names one.
const DefaultKeyserver = "hkps://keyserver.ubuntu.com"

// Entry is one configured keyserver.
type Entry struct {
	// URI is the keyserver URI as given by the client.
	URI string
	// Parsed is the parsed form of URI.
	Parsed *url.URL
}

// Registry is the session-scoped keyserver list. The most recently
// added server is asked first. Thread-safe.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add parses URI and puts it at the front of the list. A URI that does
// not parse, or whose scheme is unsupported, leaves the list unchanged.
func (r *Registry) Add(uri string) error {
	entry, err := parseEntry(uri)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]Entry{entry}, r.entries...)
	return nil
}

// Clear empties the list.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// List returns the entries front to back.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EnsureSeeded fills an empty registry from the configured URIs in
// their given order, falling back to DefaultKeyserver when none are
// configured. A non-empty registry is left alone.
func (r *Registry) EnsureSeeded(configured []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) > 0 {
		return nil
	}
	uris := configured
	if len(uris) == 0 {
		uris = []string{DefaultKeyserver}
	}
	for _, uri := range uris {
		entry, err := parseEntry(uri)
		if err != nil {
			return err
		}
		r.entries = append(r.entries, entry)
	}
	return nil
}

// ParseURI validates a keyserver URI without touching any registry.
func ParseURI(uri string) (Entry, error) {
	return parseEntry(uri)
}

func parseEntry(uri string) (Entry, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrBadURI, err)
	}
	switch u.Scheme {
	case "hkp", "hkps", "http", "https":
	default:
		return Entry{}, fmt.Errorf("%w: unsupported scheme %q", ErrBadURI, u.Scheme)
	}
	if u.Host == "" {
		return Entry{}, fmt.Errorf("%w: missing host in %q", ErrBadURI, uri)
	}
	return Entry{URI: uri, Parsed: u}, nil
}
