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

package server

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"

	"github.com/jeremyhahn/go-trustd/internal/assuan"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
	"github.com/jeremyhahn/go-trustd/pkg/crlcache"
	"github.com/jeremyhahn/go-trustd/pkg/keyserver"
	"github.com/jeremyhahn/go-trustd/pkg/metrics"
	"github.com/jeremyhahn/go-trustd/pkg/ocsp"
	"github.com/jeremyhahn/go-trustd/pkg/validate"
)

// Inquiry payload ceilings. A single certificate is small; a TLS chain
// arrives PEM-encoded, hence the base64 expansion factor; OpenPGP
// keyblocks with many third-party signatures grow to megabytes.
const (
	maxCertLength     = 16 * 1024
	maxCertListLength = maxCertLength * 20 * 4 / 3
	maxKeyblockLength = 20 * 1024 * 1024
)

// inquireCert asks the peer for one DER certificate. An empty payload
// maps to the missing-certificate error, not a transport error.
func (sess *session) inquireCert(actx *assuan.Context, keyword, arg string) (*x509.Certificate, error) {
	metrics.RecordInquiry(keyword)
	payload, err := actx.Inquire(keyword, arg, maxCertLength)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, assuan.Errorf(assuan.CodeMissingCert, "no certificate sent for %s", keyword)
	}
	cert, err := certstore.Parse(payload)
	if err != nil {
		return nil, assuan.WithCode(assuan.CodeParameter, err)
	}
	return cert, nil
}

// getCertLocal asks the peer for the certificate it is working on.
func (sess *session) getCertLocal(actx *assuan.Context, name string) (*x509.Certificate, error) {
	return sess.inquireCert(actx, "SENDCERT", name)
}

// getIssuerCertLocal asks the peer for the issuer of the certificate it
// is working on.
func (sess *session) getIssuerCertLocal(actx *assuan.Context, name string) (*x509.Certificate, error) {
	return sess.inquireCert(actx, "SENDISSUERCERT", name)
}

// getCertLocalSKI asks the peer for a certificate by subject key
// identifier, with the subject name appended for the peer's benefit.
func (sess *session) getCertLocalSKI(actx *assuan.Context, ski []byte, name string) (*x509.Certificate, error) {
	arg := hex.EncodeToString(ski)
	if name != "" {
		arg += " /" + name
	}
	return sess.inquireCert(actx, "SENDCERT_SKI", arg)
}

// getIsTrusted asks the peer whether it trusts the root certificate
// with the given fingerprint. The peer answers with a body starting
// with "1" for trusted.
func (sess *session) getIsTrusted(actx *assuan.Context, fpr certstore.Fingerprint) (bool, error) {
	metrics.RecordInquiry("ISTRUSTED")
	payload, err := actx.Inquire("ISTRUSTED", fpr.String(), 100)
	if err != nil {
		return false, err
	}
	return len(payload) > 0 && payload[0] == '1', nil
}

// targetCert asks the peer for the target certificate of the current
// command.
func (sess *session) targetCert(actx *assuan.Context) (*x509.Certificate, error) {
	return sess.inquireCert(actx, "TARGETCERT", "")
}

// certList asks the peer for a PEM chain, subject certificate first.
func (sess *session) certList(actx *assuan.Context) ([]*x509.Certificate, error) {
	metrics.RecordInquiry("CERTLIST")
	payload, err := actx.Inquire("CERTLIST", "", maxCertListLength)
	if err != nil {
		return nil, err
	}
	var chain []*x509.Certificate
	for len(payload) > 0 {
		block, rest := pem.Decode(payload)
		if block == nil {
			break
		}
		payload = rest
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := certstore.Parse(block.Bytes)
		if err != nil {
			return nil, assuan.WithCode(assuan.CodeParameter, err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, assuan.Errorf(assuan.CodeMissingCert, "no certificates sent for CERTLIST")
	}
	return chain, nil
}

// resolveIssuer finds the issuer of CERT: from the cache first, then by
// asking the peer, preferring the subject-key-identifier form when the
// certificate names its authority key.
func (sess *session) resolveIssuer(actx *assuan.Context, cert *x509.Certificate) (*x509.Certificate, error) {
	if issuer := sess.srv.cfg.Certs.FindIssuer(cert); issuer != nil {
		return issuer, nil
	}
	if len(cert.AuthorityKeyId) > 0 {
		issuer, err := sess.getCertLocalSKI(actx, cert.AuthorityKeyId, cert.Issuer.CommonName)
		if err == nil {
			return issuer, nil
		}
		if assuan.CodeOf(err) != assuan.CodeMissingCert {
			return nil, err
		}
	}
	return sess.getIssuerCertLocal(actx, "")
}

// inquireCertAndLoadCRL asks the peer for the certificate it is working
// on and loads a fresh CRL from that certificate's distribution points.
func (sess *session) inquireCertAndLoadCRL(actx *assuan.Context) error {
	cert, err := sess.getCertLocal(actx, "")
	if err != nil {
		return err
	}
	if err := sess.srv.cfg.CRLs.ReloadCRL(context.Background(), cert, sess.fetchOpts()); err != nil {
		metrics.RecordCRLFetch("distribution_point", metrics.StatusError)
		return mapCRLError(err)
	}
	metrics.RecordCRLFetch("distribution_point", metrics.StatusSuccess)
	metrics.SetCachedCRLs(float64(sess.srv.cfg.CRLs.Count()))
	return nil
}

// mapCRLError attaches wire codes to CRL cache errors.
func mapCRLError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, crlcache.ErrCertRevoked):
		return assuan.WithCode(assuan.CodeCertRevoked, err)
	case errors.Is(err, crlcache.ErrNoCRLKnown):
		return assuan.WithCode(assuan.CodeNoCRLKnown, err)
	case errors.Is(err, crlcache.ErrHTTPDisabled):
		return assuan.WithCode(assuan.CodeNotSupported, err)
	case errors.Is(err, crlcache.ErrCRLInvalid):
		return assuan.WithCode(assuan.CodeParameter, err)
	default:
		return assuan.WithCode(assuan.CodeGeneral, err)
	}
}

// mapOCSPError attaches wire codes to OCSP client errors.
func mapOCSPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ocsp.ErrCertRevoked):
		return assuan.WithCode(assuan.CodeCertRevoked, err)
	case errors.Is(err, ocsp.ErrStatusUnknown):
		return assuan.WithCode(assuan.CodeNoData, err)
	case errors.Is(err, ocsp.ErrNoResponder):
		return assuan.WithCode(assuan.CodeNotSupported, err)
	default:
		return assuan.WithCode(assuan.CodeGeneral, err)
	}
}

// mapKSError attaches wire codes to keyserver errors.
func mapKSError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyserver.ErrNotFound):
		return assuan.WithCode(assuan.CodeNotFound, err)
	case errors.Is(err, keyserver.ErrBadURI):
		return assuan.WithCode(assuan.CodeParameter, err)
	default:
		return assuan.WithCode(assuan.CodeGeneral, err)
	}
}

// mapValidateError attaches wire codes to chain validation errors.
// Coded errors from the revocation callback pass through unchanged.
func mapValidateError(err error) error {
	var ae *assuan.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, validate.ErrNotTrusted):
		return assuan.WithCode(assuan.CodeNotTrusted, err)
	case errors.Is(err, validate.ErrMissingIssuer):
		return assuan.WithCode(assuan.CodeMissingCert, err)
	default:
		return assuan.WithCode(assuan.CodeGeneral, err)
	}
}
