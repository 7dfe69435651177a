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

// Package escape implements the percent-plus token encoding used by the
// wire protocol: "%XX" decodes to the byte with hex value XX and "+"
// decodes to a space.
package escape

// Decode decodes a percent-plus escaped token into raw bytes. The output
// is never longer than the input. A "%" that is not followed by two hex
// digits is copied through literally; the protocol depends on this
// leniency, so it must not be turned into an error. Decode cannot fail.
func Decode(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]):
			out = append(out, hexVal(s[i+1])<<4|hexVal(s[i+2]))
			i += 3
		case c == '+':
			out = append(out, ' ')
			i++
		default:
			out = append(out, c)
			i++
		}
	}
	return out
}

// Encode encodes raw bytes into a percent-plus escaped token. Spaces
// become "+"; "%", "+", CR and LF are percent-escaped so that Decode
// round-trips the input.
func Encode(b []byte) string {
	const hexdigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ':
			out = append(out, '+')
		case '%', '+', '\r', '\n':
			out = append(out, '%', hexdigits[c>>4], hexdigits[c&0x0f])
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
