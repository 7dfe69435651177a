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

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(t *testing.T, uris ...string) []Entry {
	t.Helper()
	out := make([]Entry, 0, len(uris))
	for _, uri := range uris {
		e, err := parseEntry(uri)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestRegistry_AddHeadInsert(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add("hkps://first.example.org"))
	require.NoError(t, reg.Add("hkps://second.example.org"))

	got := reg.List()
	require.Len(t, got, 2)
	assert.Equal(t, "hkps://second.example.org", got[0].URI)
	assert.Equal(t, "hkps://first.example.org", got[1].URI)
}

func TestRegistry_AddBadURI(t *testing.T) {
	reg := NewRegistry()
	assert.ErrorIs(t, reg.Add("ldap://keys.example.org"), ErrBadURI)
	assert.ErrorIs(t, reg.Add("hkps://"), ErrBadURI)
	assert.ErrorIs(t, reg.Add("://nope"), ErrBadURI)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add("hkps://keys.example.org"))
	reg.Clear()
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_EnsureSeeded(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.EnsureSeeded([]string{
		"hkps://a.example.org",
		"hkps://b.example.org",
	}))

	// Configured order is preserved.
	got := reg.List()
	require.Len(t, got, 2)
	assert.Equal(t, "hkps://a.example.org", got[0].URI)
	assert.Equal(t, "hkps://b.example.org", got[1].URI)

	// Seeding again is a no-op.
	require.NoError(t, reg.EnsureSeeded([]string{"hkps://c.example.org"}))
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_EnsureSeededDefault(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.EnsureSeeded(nil))
	got := reg.List()
	require.Len(t, got, 1)
	assert.Equal(t, DefaultKeyserver, got[0].URI)
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"hkp://keys.example.org", "http://keys.example.org:11371"},
		{"hkp://keys.example.org:8080", "http://keys.example.org:8080"},
		{"hkps://keys.example.org", "https://keys.example.org"},
		{"http://keys.example.org:1234", "http://keys.example.org:1234"},
	}
	for _, tc := range tests {
		e, err := parseEntry(tc.uri)
		require.NoError(t, err)
		assert.Equal(t, tc.want, baseURL(e), "uri %q", tc.uri)
	}
}

func TestClient_Search(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pks/lookup", r.URL.Path)
		gotQuery = map[string]string{
			"op":      r.URL.Query().Get("op"),
			"options": r.URL.Query().Get("options"),
			"search":  r.URL.Query().Get("search"),
		}
		_, _ = w.Write([]byte("info:1:1\npub:ABCD1234::::\n"))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{})
	body, err := client.Search(context.Background(), entries(t, srv.URL), "alice@example.org", Options{})
	require.NoError(t, err)
	assert.Contains(t, string(body), "pub:ABCD1234")
	assert.Equal(t, "index", gotQuery["op"])
	assert.Equal(t, "mr", gotQuery["options"])
	assert.Equal(t, "alice@example.org", gotQuery["search"])
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "get", r.URL.Query().Get("op"))
		_, _ = w.Write([]byte("-----BEGIN PGP PUBLIC KEY BLOCK-----\n"))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{})
	body, err := client.Get(context.Background(), entries(t, srv.URL), "0xABCD1234", Options{})
	require.NoError(t, err)
	assert.Contains(t, string(body), "PGP PUBLIC KEY BLOCK")
}

func TestClient_Lookup_Failover(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("found"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	client := NewClient(ClientConfig{})
	body, err := client.Search(context.Background(), entries(t, bad.URL, good.URL), "x", Options{})
	require.NoError(t, err)
	assert.Equal(t, "found", string(body))
}

func TestClient_Lookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewClient(ClientConfig{})
	_, err := client.Get(context.Background(), entries(t, srv.URL), "0xDEAD", Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Lookup_EmptyList(t *testing.T) {
	client := NewClient(ClientConfig{})
	_, err := client.Search(context.Background(), nil, "x", Options{})
	assert.ErrorIs(t, err, ErrNoKeyserver)
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/keys/alice.asc", r.URL.Path)
		_, _ = w.Write([]byte("keyblock"))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{})
	body, err := client.Fetch(context.Background(), srv.URL+"/keys/alice.asc", Options{})
	require.NoError(t, err)
	assert.Equal(t, "keyblock", string(body))

	_, err = client.Fetch(context.Background(), "ftp://example.org/key", Options{})
	assert.ErrorIs(t, err, ErrBadURI)
}

func TestClient_Put(t *testing.T) {
	var gotKeytext string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/pks/add", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotKeytext = r.PostFormValue("keytext")
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{})
	err := client.Put(context.Background(), entries(t, srv.URL), []byte("armored key"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "armored key", gotKeytext)

	assert.ErrorIs(t, client.Put(context.Background(), nil, []byte("k"), Options{}), ErrNoKeyserver)
}

func TestClient_Put_PartialFailure(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer bad.Close()

	client := NewClient(ClientConfig{})

	// One acceptance is enough.
	err := client.Put(context.Background(), entries(t, bad.URL, good.URL), []byte("k"), Options{})
	assert.NoError(t, err)

	// All rejections surface the last error.
	err = client.Put(context.Background(), entries(t, bad.URL), []byte("k"), Options{})
	assert.ErrorIs(t, err, ErrFetchFailed)
}
