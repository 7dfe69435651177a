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

import (
	"crypto/x509"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustd/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, *testutil.TestCA, *x509.Certificate) {
	t.Helper()
	ca, err := testutil.GenerateCA("store-test-ca")
	require.NoError(t, err)
	leaf, _, err := ca.Issue(testutil.CertOptions{
		CommonName: "Alice Example",
		Email:      "alice@example.org",
	})
	require.NoError(t, err)

	store := New()
	require.NoError(t, store.Put(ca.Cert))
	require.NoError(t, store.Put(leaf))
	return store, ca, leaf
}

func collect(t *testing.T, store *Store, pattern string) ([]*x509.Certificate, error) {
	t.Helper()
	var got []*x509.Certificate
	err := store.ByPattern(pattern, func(cert *x509.Certificate) error {
		got = append(got, cert)
		return nil
	})
	return got, err
}

func TestStore_PutIdempotent(t *testing.T) {
	store, _, leaf := newTestStore(t)
	require.NoError(t, store.Put(leaf))
	assert.Equal(t, 2, store.Len())
}

func TestStore_ByFingerprint(t *testing.T) {
	store, _, leaf := newTestStore(t)

	got := store.ByFingerprint(FingerprintOf(leaf))
	require.NotNil(t, got)
	assert.Equal(t, leaf.Raw, got.Raw)

	var missing Fingerprint
	assert.Nil(t, store.ByFingerprint(missing))
}

func TestStore_BySubjectKeyID(t *testing.T) {
	store, _, leaf := newTestStore(t)
	got := store.BySubjectKeyID(leaf.SubjectKeyId)
	require.NotNil(t, got)
	assert.Equal(t, leaf.Raw, got.Raw)
	assert.Nil(t, store.BySubjectKeyID([]byte{0xde, 0xad}))
}

func TestStore_FindIssuer(t *testing.T) {
	store, ca, leaf := newTestStore(t)
	issuer := store.FindIssuer(leaf)
	require.NotNil(t, issuer)
	assert.Equal(t, ca.Cert.Raw, issuer.Raw)

	// The self-signed CA is its own issuer.
	assert.NotNil(t, store.FindIssuer(ca.Cert))
}

func TestStore_ByPattern_Fingerprint(t *testing.T) {
	store, _, leaf := newTestStore(t)
	pattern := strings.ToLower(FingerprintOf(leaf).String())

	got, err := collect(t, store, pattern)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, leaf.Raw, got[0].Raw)
}

func TestStore_ByPattern_Email(t *testing.T) {
	store, _, leaf := newTestStore(t)
	got, err := collect(t, store, "<ALICE@example.org>")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, leaf.Raw, got[0].Raw)
}

func TestStore_ByPattern_Substring(t *testing.T) {
	store, _, leaf := newTestStore(t)
	got, err := collect(t, store, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, leaf.Raw, got[0].Raw)
}

func TestStore_ByPattern_NoData(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := collect(t, store, "nonexistent-subject")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestStore_ByPattern_InvalidName(t *testing.T) {
	store, _, _ := newTestStore(t)
	for _, pattern := range []string{"", "#12345/CN=x", "&keygrip", "+words"} {
		_, err := collect(t, store, pattern)
		assert.ErrorIs(t, err, ErrInvalidName, "pattern %q", pattern)
	}
}

func TestStore_ByPattern_Truncation(t *testing.T) {
	ca, err := testutil.GenerateCA("trunc-ca")
	require.NoError(t, err)

	store := New()
	store.MaxMatches = 3
	for i := 0; i < 5; i++ {
		leaf, _, err := ca.Issue(testutil.CertOptions{CommonName: "bulk-subject"})
		require.NoError(t, err)
		require.NoError(t, store.Put(leaf))
	}

	got, err := collect(t, store, "bulk-subject")
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Len(t, got, 3)
}

func TestParse(t *testing.T) {
	_, _, leaf := newTestStore(t)

	cert, err := Parse(leaf.Raw)
	require.NoError(t, err)
	assert.Equal(t, leaf.Raw, cert.Raw)

	_, err = Parse([]byte("not a certificate"))
	assert.ErrorIs(t, err, ErrCertInvalid)
}
