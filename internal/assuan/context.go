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

// Package assuan implements the line-oriented request/response protocol
// spoken between the trust daemon and its client, including the INQUIRE
// sub-mechanism for requesting size-bounded blobs from the peer
// mid-command.
package assuan

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	// MaxLineLength is the hard limit for a single protocol line,
	// including the terminating newline.
	MaxLineLength = 1000

	// MaxStatusLength caps the payload of a status line. Extra fragments
	// are truncated rather than overflowing the wire buffer.
	MaxStatusLength = 950

	// maxDataChunk is the number of raw bytes encoded per D line, chosen
	// so that a fully escaped chunk still fits in MaxLineLength.
	maxDataChunk = 300
)

// Context is one side of a protocol conversation. It owns the buffered
// reader and writer for the connection; every read and write of a session
// goes through a single Context. It is not safe for concurrent use, which
// matches the strictly synchronous protocol: a command runs to completion,
// including nested inquiries, before the next line is read.
type Context struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewContext wraps a connection in a protocol context.
func NewContext(rw io.ReadWriter) *Context {
	return &Context{
		r: bufio.NewReaderSize(rw, MaxLineLength+2),
		w: bufio.NewWriterSize(rw, MaxLineLength+2),
	}
}

// ReadLine reads one protocol line, stripping the trailing newline and an
// optional carriage return. Lines longer than MaxLineLength are a
// transport error. The returned string is owned by the caller; it is
// copied out of the reader's buffer so that a nested inquiry on the same
// transport cannot mutate it.
func (c *Context) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", io.EOF
		}
		if err != io.EOF {
			return "", err
		}
	}
	if len(line) > MaxLineLength {
		return "", ErrLineTooLong
	}
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}

// WriteLine writes a single line and flushes it to the peer.
func (c *Context) WriteLine(line string) error {
	if len(line)+1 > MaxLineLength {
		return ErrLineTooLong
	}
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// OK reports successful command completion. The text is optional.
func (c *Context) OK(text string) error {
	if text == "" {
		return c.WriteLine("OK")
	}
	return c.WriteLine("OK " + text)
}

// Err reports command failure with a stable numeric code.
func (c *Context) Err(code Code, text string) error {
	return c.WriteLine(fmt.Sprintf("ERR %d %s", code, text))
}

// Status writes a status line: the keyword followed by the fragments
// joined with single spaces. The joined payload is capped at
// MaxStatusLength; fragments that do not fit are truncated.
func (c *Context) Status(keyword string, fragments ...string) error {
	var b strings.Builder
	for _, f := range fragments {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f)
	}
	payload := b.String()
	if len(payload) > MaxStatusLength {
		payload = payload[:MaxStatusLength]
	}
	if payload == "" {
		return c.WriteLine("S " + keyword)
	}
	return c.WriteLine("S " + keyword + " " + payload)
}

// StatusHelp emits TEXT as a sequence of "#" status lines, splitting at
// embedded newlines. Used to return per-command help.
func (c *Context) StatusHelp(text string) error {
	for {
		line := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			text = ""
		}
		if len(line) > MaxStatusLength {
			line = line[:MaxStatusLength]
		}
		if err := c.WriteLine("S # " + line); err != nil {
			return err
		}
		if text == "" {
			return nil
		}
	}
}

// SendData streams DATA to the peer as escaped D lines. Callers that send
// a terminated data block follow up with EndData.
func (c *Context) SendData(data []byte) error {
	for len(data) > 0 {
		n := min(len(data), maxDataChunk)
		if err := c.WriteLine("D " + escapeData(data[:n])); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// EndData terminates a data block.
func (c *Context) EndData() error {
	return c.WriteLine("END")
}

// Inquire asks the peer for the blob named by KEYWORD, with an optional
// space-separated argument, and blocks until the peer has streamed the
// complete response. maxSize bounds the decoded payload; zero means
// unbounded. The peer answers with D lines terminated by END, or cancels
// with CAN. An empty payload is a valid transport outcome; interpreting
// it is up to the caller.
func (c *Context) Inquire(keyword, arg string, maxSize int) ([]byte, error) {
	req := "INQUIRE " + keyword
	if arg != "" {
		req += " " + arg
	}
	if err := c.WriteLine(req); err != nil {
		return nil, err
	}

	var payload []byte
	overflow := false
	for {
		line, err := c.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil, ErrFraming
			}
			return nil, err
		}
		switch {
		case line == "END":
			if overflow {
				return nil, ErrInquiryTooLarge
			}
			return payload, nil
		case line == "CAN":
			return nil, ErrCanceled
		case strings.HasPrefix(line, "D "):
			if overflow {
				continue
			}
			chunk, err := unescapeData(line[2:])
			if err != nil {
				return nil, err
			}
			payload = append(payload, chunk...)
			if maxSize > 0 && len(payload) > maxSize {
				// Keep draining so the stream stays in sync; the
				// error is reported once the block ends.
				payload = nil
				overflow = true
			}
		case line == "D":
			// Empty data line; tolerated.
		default:
			return nil, ErrFraming
		}
	}
}

// escapeData encodes raw bytes for a D line. Only the characters that
// would break line framing are escaped.
func escapeData(b []byte) string {
	const hexdigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case '%', '\r', '\n':
			out = append(out, '%', hexdigits[c>>4], hexdigits[c&0x0f])
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// unescapeData decodes the payload of a D line. An incomplete percent
// escape is a framing error here, unlike the lenient command-argument
// decoder: data lines are machine-generated.
func unescapeData(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if s[i] == '%' {
			if i+2 >= len(s) {
				return nil, ErrFraming
			}
			hi, ok1 := hexNibble(s[i+1])
			lo, ok2 := hexNibble(s[i+2])
			if !ok1 || !ok2 {
				return nil, ErrFraming
			}
			out = append(out, hi<<4|lo)
			i += 3
			continue
		}
		out = append(out, s[i])
		i++
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
