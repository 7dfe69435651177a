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
	"io"
	"strconv"
	"strings"
)

// InquireFunc supplies the payload for an INQUIRE from the server. A nil
// function or an error return cancels the inquiry with CAN; returning a
// nil or empty payload sends an empty data block, which the server maps
// to its missing-data semantics.
type InquireFunc func(keyword, arg string) ([]byte, error)

// StatusLine is one "S" line received while a command was running.
type StatusLine struct {
	Keyword string
	Value   string
}

// Response collects everything the server sent for one command.
type Response struct {
	// Data is the concatenation of all data bytes received.
	Data []byte

	// Blocks holds the END-terminated data blocks individually, in order.
	Blocks [][]byte

	// Statuses holds the status lines in the order received.
	Statuses []StatusLine

	// OK is the text of the final OK line, if any.
	OK string
}

// Client is the peer side of a protocol session. It drives one command at
// a time over a connection, answering inquiries through the configured
// InquireFunc.
type Client struct {
	ctx *Context

	// Inquirer answers INQUIRE requests from the server.
	Inquirer InquireFunc

	// Hello is the greeting text received when the session was opened.
	Hello string
}

// NewClient opens a client session over RW and consumes the server
// greeting.
func NewClient(rw io.ReadWriter) (*Client, error) {
	c := &Client{ctx: NewContext(rw)}
	line, err := c.ctx.ReadLine()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "OK") {
		return nil, ErrFraming
	}
	c.Hello = strings.TrimPrefix(strings.TrimPrefix(line, "OK"), " ")
	return c, nil
}

// Do sends COMMAND and reads until the server finishes it with OK or ERR.
// An ERR response is returned as a coded *Error together with whatever
// data and status lines were already received.
func (c *Client) Do(command string) (*Response, error) {
	if err := c.ctx.WriteLine(command); err != nil {
		return nil, err
	}

	resp := &Response{}
	var block []byte
	for {
		line, err := c.ctx.ReadLine()
		if err != nil {
			if err == io.EOF {
				return resp, ErrFraming
			}
			return resp, err
		}
		switch {
		case line == "OK" || strings.HasPrefix(line, "OK "):
			resp.OK = strings.TrimPrefix(strings.TrimPrefix(line, "OK"), " ")
			if len(block) > 0 {
				resp.Blocks = append(resp.Blocks, block)
			}
			return resp, nil
		case strings.HasPrefix(line, "ERR "):
			return resp, parseErrLine(line)
		case strings.HasPrefix(line, "S "):
			kw, val := splitKeyword(line[2:])
			resp.Statuses = append(resp.Statuses, StatusLine{Keyword: kw, Value: val})
		case strings.HasPrefix(line, "D "):
			chunk, err := unescapeData(line[2:])
			if err != nil {
				return resp, err
			}
			resp.Data = append(resp.Data, chunk...)
			block = append(block, chunk...)
		case line == "END":
			resp.Blocks = append(resp.Blocks, block)
			block = nil
		case line == "D":
			// Empty data line; tolerated.
		case strings.HasPrefix(line, "INQUIRE"):
			kw, arg := splitKeyword(strings.TrimPrefix(strings.TrimPrefix(line, "INQUIRE"), " "))
			if err := c.answerInquiry(kw, arg); err != nil {
				return resp, err
			}
		case line == "" || line[0] == '#':
			// Comment; skip.
		default:
			return resp, ErrFraming
		}
	}
}

func (c *Client) answerInquiry(keyword, arg string) error {
	if c.Inquirer == nil {
		return c.ctx.WriteLine("CAN")
	}
	payload, err := c.Inquirer(keyword, arg)
	if err != nil {
		return c.ctx.WriteLine("CAN")
	}
	if len(payload) > 0 {
		if err := c.ctx.SendData(payload); err != nil {
			return err
		}
	}
	return c.ctx.EndData()
}

func parseErrLine(line string) error {
	rest := strings.TrimPrefix(line, "ERR ")
	codeStr, text := rest, ""
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		codeStr, text = rest[:i], rest[i+1:]
	}
	n, err := strconv.ParseUint(codeStr, 10, 32)
	if err != nil {
		return ErrFraming
	}
	return WithCode(Code(n), errors.New(text))
}
