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

import (
	"context"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustd/internal/testutil"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
)

// newChain builds root -> intermediate -> leaf and returns the pieces.
func newChain(t *testing.T) (*testutil.TestCA, *x509.Certificate, *x509.Certificate) {
	t.Helper()
	root, err := testutil.GenerateCA("validate-root")
	require.NoError(t, err)

	inter, interKey, err := root.Issue(testutil.CertOptions{
		CommonName: "validate-intermediate",
		IsCA:       true,
	})
	require.NoError(t, err)

	interCA := &testutil.TestCA{Cert: inter, Key: interKey}
	leaf, _, err := interCA.Issue(testutil.CertOptions{CommonName: "validate-leaf"})
	require.NoError(t, err)

	return root, inter, leaf
}

func trustOnly(fpr certstore.Fingerprint) TrustFunc {
	return func(_ context.Context, got certstore.Fingerprint) (bool, error) {
		return got == fpr, nil
	}
}

func TestValidate_CallbackTrust(t *testing.T) {
	root, inter, leaf := newChain(t)

	store := certstore.New()
	require.NoError(t, store.Put(root.Cert))

	v := New(store, nil)
	err := v.Validate(context.Background(), []*x509.Certificate{leaf, inter}, Options{
		TrustedRoot: trustOnly(certstore.FingerprintOf(root.Cert)),
		NoCRL:       true,
	})
	assert.NoError(t, err)
}

func TestValidate_IntermediateFromStore(t *testing.T) {
	root, inter, leaf := newChain(t)

	store := certstore.New()
	require.NoError(t, store.Put(root.Cert))
	require.NoError(t, store.Put(inter))

	v := New(store, nil)
	err := v.Validate(context.Background(), []*x509.Certificate{leaf}, Options{
		TrustedRoot: trustOnly(certstore.FingerprintOf(root.Cert)),
		NoCRL:       true,
	})
	assert.NoError(t, err)
}

func TestValidate_NotTrusted(t *testing.T) {
	root, inter, leaf := newChain(t)

	store := certstore.New()
	require.NoError(t, store.Put(root.Cert))

	v := New(store, nil)
	chain := []*x509.Certificate{leaf, inter}

	// A trust callback that rejects everything.
	err := v.Validate(context.Background(), chain, Options{
		TrustedRoot: func(context.Context, certstore.Fingerprint) (bool, error) {
			return false, nil
		},
		NoCRL: true,
	})
	assert.ErrorIs(t, err, ErrNotTrusted)

	// No trust callback at all.
	err = v.Validate(context.Background(), chain, Options{NoCRL: true})
	assert.ErrorIs(t, err, ErrNotTrusted)
}

func TestValidate_MissingIssuer(t *testing.T) {
	root, _, leaf := newChain(t)

	v := New(certstore.New(), nil)
	err := v.Validate(context.Background(), []*x509.Certificate{leaf}, Options{
		TrustedRoot: trustOnly(certstore.FingerprintOf(root.Cert)),
		NoCRL:       true,
	})
	assert.ErrorIs(t, err, ErrMissingIssuer)
}

func TestValidate_Expired(t *testing.T) {
	root, err := testutil.GenerateCA("validate-root")
	require.NoError(t, err)
	leaf, _, err := root.Issue(testutil.CertOptions{Expired: true})
	require.NoError(t, err)

	store := certstore.New()
	require.NoError(t, store.Put(root.Cert))

	v := New(store, nil)
	verr := v.Validate(context.Background(), []*x509.Certificate{leaf}, Options{
		TrustedRoot: trustOnly(certstore.FingerprintOf(root.Cert)),
		NoCRL:       true,
	})
	assert.ErrorIs(t, verr, ErrCertExpired)
}

func TestValidate_RevocationCallback(t *testing.T) {
	root, inter, leaf := newChain(t)

	store := certstore.New()
	require.NoError(t, store.Put(root.Cert))

	errRevoked := errors.New("revoked")
	v := New(store, nil)
	opts := Options{
		TrustedRoot: trustOnly(certstore.FingerprintOf(root.Cert)),
		CheckRevocation: func(_ context.Context, cert *x509.Certificate) error {
			if cert.SerialNumber.Cmp(leaf.SerialNumber) == 0 {
				return errRevoked
			}
			return nil
		},
	}
	chain := []*x509.Certificate{leaf, inter}

	err := v.Validate(context.Background(), chain, opts)
	assert.ErrorIs(t, err, errRevoked)

	// NoCRL suppresses the callback.
	opts.NoCRL = true
	assert.NoError(t, v.Validate(context.Background(), chain, opts))
}

func TestValidate_SystemTrustRejectsPrivateRoot(t *testing.T) {
	_, inter, leaf := newChain(t)

	v := New(certstore.New(), nil)
	err := v.Validate(context.Background(), []*x509.Certificate{leaf, inter}, Options{
		TrustSystem: true,
		NoCRL:       true,
	})
	assert.ErrorIs(t, err, ErrNotTrusted)
}

func TestValidate_TLSUsage(t *testing.T) {
	root, inter, leaf := newChain(t)

	store := certstore.New()
	require.NoError(t, store.Put(root.Cert))

	v := New(store, nil)
	err := v.Validate(context.Background(), []*x509.Certificate{leaf, inter}, Options{
		TLS:         true,
		TrustedRoot: trustOnly(certstore.FingerprintOf(root.Cert)),
		NoCRL:       true,
	})
	assert.NoError(t, err)
}

func TestValidate_EmptyChain(t *testing.T) {
	v := New(certstore.New(), nil)
	err := v.Validate(context.Background(), nil, Options{NoCRL: true})
	assert.ErrorIs(t, err, ErrBadCert)
}
