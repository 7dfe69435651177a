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

package assuan

import (
	"errors"
	"fmt"
)

// Code is the numeric error code carried on ERR response lines. Codes are
// part of the wire contract and must stay stable across releases.
type Code uint32

const (
	// CodeGeneral is the catch-all for errors without a more specific code.
	CodeGeneral Code = 1

	// CodeUnknownCommand is returned for a command keyword that is not
	// registered with the dispatcher.
	CodeUnknownCommand Code = 2

	// CodeUnknownOption is returned for an OPTION key the server does not
	// understand.
	CodeUnknownOption Code = 3

	// CodeParameter indicates malformed command syntax or arguments.
	CodeParameter Code = 4

	// CodeNotSupported indicates an administratively disabled feature,
	// e.g. OCSP checking when it is switched off in the configuration.
	CodeNotSupported Code = 5

	// CodeNotImplemented indicates an unsupported option combination.
	CodeNotImplemented Code = 6

	// CodeNoData indicates a cache or search that yielded nothing.
	CodeNoData Code = 7

	// CodeInvalidName indicates a lookup pattern the cache engine cannot
	// interpret.
	CodeInvalidName Code = 8

	// CodeMissingCert indicates an empty or absent inquiry payload where a
	// certificate was required.
	CodeMissingCert Code = 9

	// CodeCertRevoked indicates a certificate found on a CRL or reported
	// revoked by an OCSP responder.
	CodeCertRevoked Code = 10

	// CodeNoCRLKnown indicates that no usable CRL is available for the
	// certificate in question.
	CodeNoCRLKnown Code = 11

	// CodeNotTrusted indicates that the client declined an ISTRUSTED
	// inquiry for a root certificate.
	CodeNotTrusted Code = 12

	// CodeCanceled indicates that the client answered an inquiry with CAN.
	CodeCanceled Code = 13

	// CodeTransport indicates a protocol framing or size violation by the
	// peer.
	CodeTransport Code = 14

	// CodeNotFound is returned when a requested combination cannot yield a
	// result, e.g. LOOKUP --url together with --cache-only.
	CodeNotFound Code = 15

	// CodeFalse is the negative answer for boolean queries such as
	// GETINFO tor.
	CodeFalse Code = 16
)

// Error is an error carrying a wire code. The dispatcher reports the code
// to the peer verbatim while the wrapped error keeps its identity for
// errors.Is checks.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// WithCode attaches a wire code to err.
func WithCode(code Code, err error) *Error {
	return &Error{Code: code, err: err}
}

// Errorf formats a new coded error.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the wire code from err, falling back to CodeGeneral.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeGeneral
}

// Transport and inquiry errors raised by the protocol engine itself.
var (
	// ErrLineTooLong is returned when a request line exceeds MaxLineLength.
	ErrLineTooLong = Errorf(CodeTransport, "assuan: line too long")

	// ErrInquiryTooLarge is returned when inquiry data exceeds the size
	// ceiling given to Inquire.
	ErrInquiryTooLarge = Errorf(CodeTransport, "assuan: inquiry data exceeds size limit")

	// ErrCanceled is returned when the peer cancels an inquiry with CAN.
	ErrCanceled = Errorf(CodeCanceled, "assuan: inquiry canceled by peer")

	// ErrFraming is returned when the peer violates the response framing
	// expected during an inquiry.
	ErrFraming = Errorf(CodeTransport, "assuan: protocol framing violated")
)
