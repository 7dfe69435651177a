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
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-trustd/internal/assuan"
	"github.com/jeremyhahn/go-trustd/pkg/adapters/logger"
	"github.com/jeremyhahn/go-trustd/pkg/certstore"
	"github.com/jeremyhahn/go-trustd/pkg/crlcache"
	"github.com/jeremyhahn/go-trustd/pkg/escape"
	"github.com/jeremyhahn/go-trustd/pkg/keyserver"
	"github.com/jeremyhahn/go-trustd/pkg/metrics"
	"github.com/jeremyhahn/go-trustd/pkg/validate"
)

const helpIsValid = `ISVALID [--only-ocsp] [--force-default-responder] <issuerhash.serialno|fingerprint>

Check whether the certificate with ISSUERHASH and SERIALNO, or the one
with FINGERPRINT, is valid. The first form consults the CRL cache; the
second asks an OCSP responder about the current target certificate.
When no suitable CRL is cached the client is asked once for the
certificate so that a fresh CRL can be retrieved from its distribution
points. With --only-ocsp the CRL form fails with a no-CRL-known
error.`

const helpCheckCRL = `CHECKCRL [<fingerprint>]

Check whether the certificate with FINGERPRINT is revoked according to
its issuer's CRL. Without a fingerprint, or when the certificate is not
cached, the client is asked for the target certificate. A missing CRL
is fetched from the certificate's distribution points and the check is
retried once.`

const helpCheckOCSP = `CHECKOCSP [--force-default-responder] [<fingerprint>]

Check whether the certificate with FINGERPRINT is revoked according to
its OCSP responder. Without a fingerprint, or when the certificate is
not cached, the client is asked for the target certificate. Fails when
OCSP checking is administratively disabled.`

const helpLookup = `LOOKUP [--url] [--single] [--cache-only] <pattern...>

Return certificates matching the given patterns as data blocks. A
pattern is a fingerprint, an <email> address, a /-prefixed exact
subject DN, or a subject substring. With --single the first match ends
the search. A TRUNCATED status reports a capped result set. With --url
the single argument is an HTTP(S) location to retrieve one certificate
from; this form cannot be combined with --cache-only.`

const helpLoadCRL = `LOADCRL [--url] <filename|url>

Load the CRL from FILENAME into the cache. With --url the argument is
retrieved over HTTP(S) first.`

const helpListCRLs = `LISTCRLS

Return a readable dump of the cached CRLs as a data block.`

const helpCacheCert = `CACHECERT

Ask the client for a certificate (TARGETCERT inquiry) and insert it
into the certificate cache.`

const helpValidate = `VALIDATE [--systrust] [--tls] [--no-crl]

Ask the client for a certificate (TARGETCERT inquiry) or, with --tls,
for a PEM chain (CERTLIST inquiry, subject first) and run full chain
validation. Roots are checked against the system trust store with
--systrust, otherwise through an ISTRUSTED inquiry. Revocation
checking is skipped with --no-crl.`

const helpKeyserver = `KEYSERVER [--clear] [--help] [<uri>...]

Without arguments, list the session's keyservers as KEYSERVER status
lines, seeding the list from the configuration on first use. URIs are
added to the front of the list. --clear empties the list first.`

const helpKSSearch = `KS_SEARCH [--quick] <pattern...>

Search the configured keyservers for keys matching the patterns and
return the machine-readable listing as a data block.`

const helpKSGet = `KS_GET [--quick] <pattern...>

Fetch the keys matching the patterns from the configured keyservers
and return each keyblock as a data block.`

const helpKSFetch = `KS_FETCH <url>

Fetch a keyblock directly from URL, bypassing the configured
keyservers.`

const helpKSPut = `KS_PUT

Ask the client for a keyblock (KEYBLOCK inquiry) and its info lines
(KEYBLOCK_INFO inquiry) and publish the key to the configured
keyservers.`

const helpGetInfo = `GETINFO <what>

Multi purpose command to return certain information.
Supported values of WHAT are:

version     - Return the version of the program
pid         - Return the process id of the server
tor         - Return OK if running in Tor mode
socket_name - Return the name of the socket`

const helpShutdown = `SHUTDOWN

Stop the daemon once this session ends.`

// errStopLookup ends a multi-pattern lookup after the first hit.
var errStopLookup = errors.New("stop lookup")

func (sess *session) cmdIsValid(actx *assuan.Context, line string) error {
	forceDefault := assuan.HasOption(line, "--force-default-responder")
	onlyOCSP := assuan.HasOption(line, "--only-ocsp")
	arg := string(escape.Decode(assuan.SkipOptions(line)))
	if arg == "" {
		return assuan.Errorf(assuan.CodeParameter, "issuerhash.serialno or fingerprint expected")
	}

	if i := strings.IndexByte(arg, '.'); i >= 0 {
		issuerHash, serial := arg[:i], arg[i+1:]
		if issuerHash == "" || serial == "" {
			return assuan.Errorf(assuan.CodeParameter, "malformed issuerhash.serialno")
		}
		if onlyOCSP {
			return assuan.Errorf(assuan.CodeNoCRLKnown, "CRL checking disabled by --only-ocsp")
		}
		return sess.checkCRLBySerial(actx, issuerHash, serial)
	}

	if !isHex40(arg) {
		return assuan.Errorf(assuan.CodeParameter, "fingerprint must be 40 hex characters")
	}
	if !sess.srv.cfg.OCSPEnabled {
		return assuan.Errorf(assuan.CodeNotSupported, "OCSP checking disabled")
	}
	// The parsed fingerprint is deliberately not used to select the
	// certificate; the client supplies its current target out of band.
	cert, err := sess.getCertLocal(actx, "")
	if err != nil {
		return err
	}
	issuer, err := sess.resolveIssuer(actx, cert)
	if err != nil {
		return err
	}
	return mapOCSPError(sess.srv.cfg.OCSP.Check(context.Background(), cert, issuer, sess.ocspOpts(forceDefault)))
}

// checkCRLBySerial runs the CRL cache query with its single retry: on
// the first "don't know" the client is asked for the certificate, a
// fresh CRL is loaded from its distribution points, and the query runs
// once more.
func (sess *session) checkCRLBySerial(actx *assuan.Context, issuerHash, serial string) error {
	force := sess.forceCRLRefresh
	for attempt := 0; ; attempt++ {
		status := sess.srv.cfg.CRLs.IsValid(issuerHash, serial, force)
		force = false
		switch status {
		case crlcache.StatusValid:
			return nil
		case crlcache.StatusInvalid:
			return assuan.Errorf(assuan.CodeCertRevoked, "certificate revoked")
		case crlcache.StatusDontKnow:
			if attempt > 0 {
				return assuan.Errorf(assuan.CodeNoCRLKnown, "no CRL known even after reload")
			}
			if err := sess.inquireCertAndLoadCRL(actx); err != nil {
				return err
			}
		case crlcache.StatusCantUse:
			return assuan.Errorf(assuan.CodeNoCRLKnown, "cached CRL cannot be used")
		default:
			// The cache answering outside its enum means a broken
			// collaborator; there is no safe way to continue.
			sess.log.Fatal("impossible CRL cache status",
				logger.Int("status", int(status)))
			return assuan.Errorf(assuan.CodeGeneral, "impossible CRL cache status")
		}
	}
}

// checkCRLForCert validates CERT against its issuer's CRL, reloading
// the CRL from the certificate's distribution points and retrying once
// when none is cached.
func (sess *session) checkCRLForCert(cert *x509.Certificate) error {
	crls := sess.srv.cfg.CRLs
	err := crls.CertIsValid(cert, sess.forceCRLRefresh)
	if errors.Is(err, crlcache.ErrNoCRLKnown) {
		if rerr := crls.ReloadCRL(context.Background(), cert, sess.fetchOpts()); rerr != nil {
			metrics.RecordCRLFetch("distribution_point", metrics.StatusError)
			return mapCRLError(rerr)
		}
		metrics.RecordCRLFetch("distribution_point", metrics.StatusSuccess)
		metrics.SetCachedCRLs(float64(crls.Count()))
		err = crls.CertIsValid(cert, false)
	}
	return mapCRLError(err)
}

func (sess *session) cmdCheckCRL(actx *assuan.Context, line string) error {
	cert, err := sess.certFromLineOrTarget(actx, line)
	if err != nil {
		return err
	}
	return sess.checkCRLForCert(cert)
}

func (sess *session) cmdCheckOCSP(actx *assuan.Context, line string) error {
	forceDefault := assuan.HasOption(line, "--force-default-responder")
	if !sess.srv.cfg.OCSPEnabled {
		return assuan.Errorf(assuan.CodeNotSupported, "OCSP checking disabled")
	}
	cert, err := sess.certFromLineOrTarget(actx, assuan.SkipOptions(line))
	if err != nil {
		return err
	}
	issuer, err := sess.resolveIssuer(actx, cert)
	if err != nil {
		return err
	}
	return mapOCSPError(sess.srv.cfg.OCSP.Check(context.Background(), cert, issuer, sess.ocspOpts(forceDefault)))
}

// certFromLineOrTarget resolves the certificate a validity command
// works on: a cached one named by an optional fingerprint argument,
// else the peer's target certificate via inquiry.
func (sess *session) certFromLineOrTarget(actx *assuan.Context, line string) (*x509.Certificate, error) {
	if fpr, ok := fingerprintFromLine(strings.TrimSpace(line)); ok {
		if cert := sess.srv.cfg.Certs.ByFingerprint(fpr); cert != nil {
			return cert, nil
		}
	}
	return sess.targetCert(actx)
}

func (sess *session) cmdLookup(actx *assuan.Context, line string) error {
	urlMode := assuan.HasOption(line, "--url")
	single := assuan.HasOption(line, "--single")
	cacheOnly := assuan.HasOption(line, "--cache-only")
	rest := assuan.SkipOptions(line)
	if rest == "" {
		return assuan.Errorf(assuan.CodeParameter, "lookup pattern expected")
	}

	if urlMode {
		if cacheOnly {
			return assuan.Errorf(assuan.CodeNotFound, "URL lookup is not possible with --cache-only")
		}
		cert, err := sess.fetchCertURL(context.Background(), string(escape.Decode(rest)))
		if err != nil {
			return err
		}
		if err := actx.SendData(cert.Raw); err != nil {
			return err
		}
		return actx.EndData()
	}

	count := 0
	truncated := false
	sawNoData := false
	store := sess.srv.cfg.Certs

	for _, token := range strings.Fields(rest) {
		pattern := string(escape.Decode(token))
		err := store.ByPattern(pattern, func(cert *x509.Certificate) error {
			if err := actx.SendData(cert.Raw); err != nil {
				return err
			}
			if err := actx.EndData(); err != nil {
				return err
			}
			count++
			if single {
				return errStopLookup
			}
			return nil
		})
		switch {
		case err == nil:
		case errors.Is(err, errStopLookup):
			// The stop fires on the first yielded match, so no
			// TRUNCATED status can be pending here.
			return nil
		case errors.Is(err, certstore.ErrTruncated):
			truncated = true
		case errors.Is(err, certstore.ErrNoData):
			// Swallowed unless the whole command comes up empty in
			// cache-only mode.
			sawNoData = true
		case errors.Is(err, certstore.ErrInvalidName):
			if cacheOnly {
				return assuan.WithCode(assuan.CodeInvalidName, err)
			}
		default:
			return err
		}
	}

	if truncated {
		if err := actx.Status("TRUNCATED", strconv.Itoa(count)); err != nil {
			return err
		}
	}
	if count == 0 && cacheOnly && sawNoData {
		return assuan.Errorf(assuan.CodeNoData, "no matching certificate in cache")
	}
	return nil
}

// fetchCertURL retrieves one certificate, DER or PEM, from a direct
// HTTP(S) location, bounded by the certificate size ceiling.
func (sess *session) fetchCertURL(ctx context.Context, rawURL string) (*x509.Certificate, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, assuan.Errorf(assuan.CodeParameter, "unsupported certificate URL %q", rawURL)
	}

	client := &http.Client{Timeout: defaultNetTimeout}
	if sess.httpProxy != "" {
		proxyURL, err := url.Parse(sess.httpProxy)
		if err != nil {
			return nil, assuan.WithCode(assuan.CodeParameter, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, assuan.WithCode(assuan.CodeParameter, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, assuan.WithCode(assuan.CodeGeneral, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, assuan.Errorf(assuan.CodeNotFound, "no certificate at %q", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, assuan.Errorf(assuan.CodeGeneral, "certificate fetch from %q failed: %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCertLength+1))
	if err != nil {
		return nil, assuan.WithCode(assuan.CodeGeneral, err)
	}
	if len(body) > maxCertLength {
		return nil, assuan.Errorf(assuan.CodeTransport, "certificate at %q exceeds %d bytes", rawURL, maxCertLength)
	}
	if block, _ := pem.Decode(body); block != nil && block.Type == "CERTIFICATE" {
		body = block.Bytes
	}
	cert, err := certstore.Parse(body)
	if err != nil {
		return nil, assuan.WithCode(assuan.CodeParameter, err)
	}
	return cert, nil
}

func (sess *session) cmdLoadCRL(actx *assuan.Context, line string) error {
	urlMode := assuan.HasOption(line, "--url")
	arg := string(escape.Decode(assuan.SkipOptions(line)))
	if arg == "" {
		return assuan.Errorf(assuan.CodeParameter, "filename or URL expected")
	}

	crls := sess.srv.cfg.CRLs
	var err error
	if urlMode {
		err = crls.FetchAndInsert(context.Background(), arg, sess.fetchOpts())
		source := "url"
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
		}
		metrics.RecordCRLFetch(source, status)
	} else {
		err = crls.Load(arg)
	}
	if err != nil {
		return mapCRLError(err)
	}
	metrics.SetCachedCRLs(float64(crls.Count()))
	return nil
}

func (sess *session) cmdListCRLs(actx *assuan.Context, _ string) error {
	var buf bytes.Buffer
	if err := sess.srv.cfg.CRLs.List(&buf); err != nil {
		return assuan.WithCode(assuan.CodeGeneral, err)
	}
	if err := actx.SendData(buf.Bytes()); err != nil {
		return err
	}
	return actx.EndData()
}

func (sess *session) cmdCacheCert(actx *assuan.Context, _ string) error {
	cert, err := sess.targetCert(actx)
	if err != nil {
		return err
	}
	if err := sess.srv.cfg.Certs.Put(cert); err != nil {
		return assuan.WithCode(assuan.CodeGeneral, err)
	}
	metrics.SetCachedCerts(float64(sess.srv.cfg.Certs.Len()))
	return nil
}

func (sess *session) cmdValidate(actx *assuan.Context, line string) error {
	systrust := assuan.HasOption(line, "--systrust")
	tlsMode := assuan.HasOption(line, "--tls")
	noCRL := assuan.HasOption(line, "--no-crl")

	var chain []*x509.Certificate
	var err error
	if tlsMode {
		chain, err = sess.certList(actx)
	} else {
		var cert *x509.Certificate
		cert, err = sess.targetCert(actx)
		chain = []*x509.Certificate{cert}
	}
	if err != nil {
		return err
	}

	// Cache the extra chain certificates so later commands can resolve
	// them by fingerprint, and prefer an already cached copy of the
	// target.
	store := sess.srv.cfg.Certs
	for _, cert := range chain[1:] {
		_ = store.Put(cert)
	}
	if cached := store.ByFingerprint(certstore.FingerprintOf(chain[0])); cached != nil {
		chain[0] = cached
	}
	metrics.SetCachedCerts(float64(store.Len()))

	opts := validate.Options{
		TrustSystem: systrust,
		TLS:         tlsMode,
		NoCRL:       noCRL,
		TrustedRoot: func(_ context.Context, fpr certstore.Fingerprint) (bool, error) {
			return sess.getIsTrusted(actx, fpr)
		},
		CheckRevocation: func(_ context.Context, cert *x509.Certificate) error {
			return sess.checkCRLForCert(cert)
		},
	}
	return mapValidateError(sess.srv.validator.Validate(context.Background(), chain, opts))
}

func (sess *session) cmdKeyserver(actx *assuan.Context, line string) error {
	clear := assuan.HasOption(line, "--clear")
	help := assuan.HasOption(line, "--help")
	rest := assuan.SkipOptions(line)

	if help {
		return actx.StatusHelp(helpKeyserver)
	}
	if rest != "" {
		// Parse everything before touching the registry so one bad URI
		// leaves it unchanged, --clear included.
		uris := strings.Fields(rest)
		for i, uri := range uris {
			uris[i] = string(escape.Decode(uri))
			if _, err := keyserver.ParseURI(uris[i]); err != nil {
				return assuan.WithCode(assuan.CodeParameter, err)
			}
		}
		if clear {
			sess.keyservers.Clear()
		}
		for _, uri := range uris {
			if err := sess.keyservers.Add(uri); err != nil {
				return assuan.WithCode(assuan.CodeParameter, err)
			}
		}
		return nil
	}
	if clear {
		sess.keyservers.Clear()
		return nil
	}

	entries, err := sess.seededKeyservers()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := actx.Status("KEYSERVER", entry.URI); err != nil {
			return err
		}
	}
	return nil
}

func (sess *session) cmdKSSearch(actx *assuan.Context, line string) error {
	quick := assuan.HasOption(line, "--quick")
	rest := assuan.SkipOptions(line)
	if rest == "" {
		return assuan.Errorf(assuan.CodeParameter, "search pattern expected")
	}
	tokens := strings.Fields(rest)
	for i, tok := range tokens {
		tokens[i] = string(escape.Decode(tok))
	}
	pattern := strings.Join(tokens, " ")

	entries, err := sess.seededKeyservers()
	if err != nil {
		return err
	}
	body, err := sess.srv.ks.Search(context.Background(), entries, pattern, sess.ksOpts(quick))
	if err != nil {
		return mapKSError(err)
	}
	if err := actx.SendData(body); err != nil {
		return err
	}
	return actx.EndData()
}

func (sess *session) cmdKSGet(actx *assuan.Context, line string) error {
	quick := assuan.HasOption(line, "--quick")
	rest := assuan.SkipOptions(line)
	if rest == "" {
		return assuan.Errorf(assuan.CodeParameter, "key pattern expected")
	}

	entries, err := sess.seededKeyservers()
	if err != nil {
		return err
	}
	for _, token := range strings.Fields(rest) {
		body, err := sess.srv.ks.Get(context.Background(), entries, string(escape.Decode(token)), sess.ksOpts(quick))
		if err != nil {
			return mapKSError(err)
		}
		if err := actx.SendData(body); err != nil {
			return err
		}
		if err := actx.EndData(); err != nil {
			return err
		}
	}
	return nil
}

func (sess *session) cmdKSFetch(actx *assuan.Context, line string) error {
	arg := string(escape.Decode(strings.TrimSpace(line)))
	if arg == "" {
		return assuan.Errorf(assuan.CodeParameter, "URL expected")
	}
	body, err := sess.srv.ks.Fetch(context.Background(), arg, sess.ksOpts(false))
	if err != nil {
		return mapKSError(err)
	}
	if err := actx.SendData(body); err != nil {
		return err
	}
	return actx.EndData()
}

func (sess *session) cmdKSPut(actx *assuan.Context, _ string) error {
	metrics.RecordInquiry("KEYBLOCK")
	keyblock, err := actx.Inquire("KEYBLOCK", "", maxKeyblockLength)
	if err != nil {
		return err
	}
	// An empty keyblock is rejected before the info inquiry is issued.
	if len(keyblock) == 0 {
		return assuan.Errorf(assuan.CodeMissingCert, "no keyblock sent")
	}

	metrics.RecordInquiry("KEYBLOCK_INFO")
	if _, err := actx.Inquire("KEYBLOCK_INFO", "", maxKeyblockLength); err != nil {
		return err
	}
	// The info lines describe the keyblock in colon format; the HKP
	// upload does not need them.

	entries, err := sess.seededKeyservers()
	if err != nil {
		return err
	}
	return mapKSError(sess.srv.ks.Put(context.Background(), entries, keyblock, sess.ksOpts(false)))
}

func (sess *session) cmdGetInfo(actx *assuan.Context, line string) error {
	switch strings.TrimSpace(line) {
	case "version":
		return actx.SendData([]byte(sess.srv.cfg.Version))
	case "pid":
		return actx.SendData([]byte(strconv.Itoa(os.Getpid())))
	case "tor":
		return assuan.Errorf(assuan.CodeFalse, "Tor mode is NOT enabled")
	case "socket_name":
		if sess.srv.cfg.SocketPath == "" {
			return assuan.Errorf(assuan.CodeNoData, "no socket name known")
		}
		return actx.SendData([]byte(sess.srv.cfg.SocketPath))
	default:
		return assuan.Errorf(assuan.CodeParameter, "unknown value for WHAT")
	}
}

func (sess *session) cmdShutdown(_ *assuan.Context, _ string) error {
	sess.stopme = true
	return nil
}
