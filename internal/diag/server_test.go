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

package diag

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustd/internal/testutil"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
	"github.com/jeremyhahn/go-trustd/pkg/crlcache"
)

func newTestServer(t *testing.T) (*Server, *certstore.Store, *crlcache.Cache) {
	t.Helper()
	store := certstore.New()
	crls, err := crlcache.New(crlcache.Config{})
	require.NoError(t, err)
	srv, err := NewServer(&Config{
		SocketPath: filepath.Join(t.TempDir(), "diag.sock"),
		Version:    "0.0.0-test",
		Certs:      store,
		CRLs:       crls,
	})
	require.NoError(t, err)
	return srv, store, crls
}

func TestHealthEndpoint(t *testing.T) {
	srv, store, crls := newTestServer(t)

	ca, err := testutil.GenerateCA("diag test CA")
	require.NoError(t, err)
	require.NoError(t, store.Put(ca.Cert))
	der, err := ca.CRL()
	require.NoError(t, err)
	require.NoError(t, crls.Insert("test", der))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "0.0.0-test", status.Version)
	assert.Equal(t, 1, status.CachedCerts)
	assert.Equal(t, 1, status.CachedCRLs)
}

func TestLivenessAndReadiness(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessWithoutCaches(t *testing.T) {
	srv, err := NewServer(&Config{
		SocketPath: filepath.Join(t.TempDir(), "diag.sock"),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestStartAndStop(t *testing.T) {
	srv, _, _ := newTestServer(t)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Wait for the socket to appear.
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", srv.SocketPath())
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, <-errCh)
}
