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

// Package validate builds and checks certificate chains. Roots are
// either resolved against the system trust store or judged by a
// caller-supplied trust callback; revocation checking is likewise
// delegated so the caller can bring its own CRL machinery.
package validate

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
)

// maxChainDepth bounds issuer chasing.
const maxChainDepth = 25

// TrustFunc reports whether the root certificate with the given
// fingerprint is trusted.
type TrustFunc func(ctx context.Context, fpr certstore.Fingerprint) (bool, error)

// RevocationFunc checks one chain certificate for revocation.
type RevocationFunc func(ctx context.Context, cert *x509.Certificate) error

// Options controls one validation run.
type Options struct {
	// TrustSystem resolves the chain against the system trust store
	// instead of asking TrustedRoot.
	TrustSystem bool

	// TLS validates the target for TLS server use.
	TLS bool

	// NoCRL skips revocation checking.
	NoCRL bool

	// TrustedRoot judges the chain's root when TrustSystem is off. Nil
	// means no root is trusted.
	TrustedRoot TrustFunc

	// CheckRevocation checks each chain certificate unless NoCRL is
	// set. Nil skips the check.
	CheckRevocation RevocationFunc

	// Time is the validation time; zero means now.
	Time time.Time
}

// Validator validates certificate chains against a pool of cached
// intermediates.
type Validator struct {
	store *certstore.Store
	log   logger.Logger
}

// New creates a validator drawing intermediates from STORE.
func New(store *certstore.Store, log logger.Logger) *Validator {
	if log == nil {
		log = logger.Default()
	}
	return &Validator{store: store, log: log}
}

// Validate checks the chain whose first element is the target
// certificate. Extra chain elements and the validator's store both
// serve as issuer candidates.
func (v *Validator) Validate(ctx context.Context, chain []*x509.Certificate, opts Options) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty chain", ErrBadCert)
	}
	now := opts.Time
	if now.IsZero() {
		now = time.Now()
	}
	if opts.TrustSystem {
		return v.validateSystem(ctx, chain, opts, now)
	}
	return v.validateWithCallback(ctx, chain, opts, now)
}

func (v *Validator) validateSystem(ctx context.Context, chain []*x509.Certificate, opts Options, now time.Time) error {
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	for _, cert := range v.store.All() {
		intermediates.AddCert(cert)
	}
	usage := []x509.ExtKeyUsage{x509.ExtKeyUsageAny}
	if opts.TLS {
		usage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	}
	chains, err := chain[0].Verify(x509.VerifyOptions{
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     usage,
	})
	if err != nil {
		return mapVerifyError(err)
	}
	if opts.NoCRL || opts.CheckRevocation == nil {
		return nil
	}
	for _, cert := range chains[0] {
		if err := opts.CheckRevocation(ctx, cert); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateWithCallback(ctx context.Context, chain []*x509.Certificate, opts Options, now time.Time) error {
	if opts.TLS {
		if !hasServerAuth(chain[0]) {
			return fmt.Errorf("%w: not valid for TLS server use", ErrBadCert)
		}
	}

	current := chain[0]
	for depth := 0; depth < maxChainDepth; depth++ {
		if now.Before(current.NotBefore) || now.After(current.NotAfter) {
			return fmt.Errorf("%w: %q", ErrCertExpired, current.Subject.CommonName)
		}
		if !opts.NoCRL && opts.CheckRevocation != nil {
			if err := opts.CheckRevocation(ctx, current); err != nil {
				return err
			}
		}

		if isSelfSigned(current) {
			if opts.TrustedRoot == nil {
				return ErrNotTrusted
			}
			trusted, err := opts.TrustedRoot(ctx, certstore.FingerprintOf(current))
			if err != nil {
				return err
			}
			if !trusted {
				return ErrNotTrusted
			}
			v.log.Debug("chain validated",
				logger.String("target", chain[0].Subject.CommonName),
				logger.String("root", current.Subject.CommonName),
				logger.Int("depth", depth))
			return nil
		}

		issuer := v.findIssuer(current, chain[1:])
		if issuer == nil {
			return fmt.Errorf("%w: issuer of %q", ErrMissingIssuer, current.Subject.CommonName)
		}
		if err := current.CheckSignatureFrom(issuer); err != nil {
			return fmt.Errorf("%w: signature of %q: %v", ErrBadCert, current.Subject.CommonName, err)
		}
		current = issuer
	}
	return ErrChainTooLong
}

// findIssuer looks for the issuer among the extra chain certificates
// first, then in the store.
func (v *Validator) findIssuer(cert *x509.Certificate, extras []*x509.Certificate) *x509.Certificate {
	for _, candidate := range extras {
		if string(candidate.RawSubject) != string(cert.RawIssuer) {
			continue
		}
		if err := cert.CheckSignatureFrom(candidate); err == nil {
			return candidate
		}
	}
	return v.store.FindIssuer(cert)
}

func isSelfSigned(cert *x509.Certificate) bool {
	if string(cert.RawSubject) != string(cert.RawIssuer) {
		return false
	}
	return cert.CheckSignatureFrom(cert) == nil
}

func hasServerAuth(cert *x509.Certificate) bool {
	for _, eku := range cert.ExtKeyUsage {
		if eku == x509.ExtKeyUsageServerAuth || eku == x509.ExtKeyUsageAny {
			return true
		}
	}
	return false
}

func mapVerifyError(err error) error {
	switch e := err.(type) {
	case x509.UnknownAuthorityError:
		return fmt.Errorf("%w: %v", ErrNotTrusted, e)
	case x509.CertificateInvalidError:
		if e.Reason == x509.Expired {
			return fmt.Errorf("%w: %v", ErrCertExpired, e)
		}
		return fmt.Errorf("%w: %v", ErrBadCert, e)
	default:
		return fmt.Errorf("%w: %v", ErrBadCert, err)
	}
}
