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
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startSession runs SRV over one end of an in-memory pipe and returns a
// connected client. The session goroutine is cleaned up with the test.
func startSession(t *testing.T, srv *Server, inquirer InquireFunc) *Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		_ = serverConn.Close()
		_ = clientConn.Close()
	})
	go func() { _ = srv.Process(serverConn) }()

	client, err := NewClient(clientConn)
	require.NoError(t, err)
	client.Inquirer = inquirer
	return client
}

func TestHasOption(t *testing.T) {
	assert.True(t, HasOption("--single --url foo", "--single"))
	assert.True(t, HasOption("--single --url foo", "--url"))
	assert.False(t, HasOption("--single foo --url", "--url"))
	assert.False(t, HasOption("foo", "--url"))
	assert.False(t, HasOption("", "--url"))
}

func TestSkipOptions(t *testing.T) {
	assert.Equal(t, "foo bar", SkipOptions("--single --cache-only foo bar"))
	assert.Equal(t, "foo", SkipOptions("foo"))
	assert.Equal(t, "", SkipOptions("--single"))
	assert.Equal(t, "", SkipOptions(""))
}

func TestServer_HelloAndUnknownCommand(t *testing.T) {
	srv := NewServer()
	srv.HelloLine = "trustd test at your service"
	client := startSession(t, srv, nil)
	assert.Equal(t, "trustd test at your service", client.Hello)

	_, err := client.Do("BOGUS")
	assert.Equal(t, CodeUnknownCommand, CodeOf(err))
}

func TestServer_CommandDispatchAndData(t *testing.T) {
	srv := NewServer()
	srv.Register("ECHO", func(ctx *Context, line string) error {
		if err := ctx.SendData([]byte(line)); err != nil {
			return err
		}
		return ctx.EndData()
	}, "ECHO <text>")

	client := startSession(t, srv, nil)
	resp, err := client.Do("ECHO hello world")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), resp.Data)
	require.Len(t, resp.Blocks, 1)
}

func TestServer_DataEscaping(t *testing.T) {
	payload := []byte("line1\r\nline2 with 100%\nand binary \x00\xff")
	srv := NewServer()
	srv.Register("BLOB", func(ctx *Context, line string) error {
		return ctx.SendData(payload)
	}, "")

	client := startSession(t, srv, nil)
	resp, err := client.Do("BLOB")
	require.NoError(t, err)
	assert.Equal(t, payload, resp.Data)
}

func TestServer_Inquire(t *testing.T) {
	var got []byte
	srv := NewServer()
	srv.Register("FETCH", func(ctx *Context, line string) error {
		value, err := ctx.Inquire("SENDCERT", line, 64)
		if err != nil {
			return err
		}
		got = append([]byte(nil), value...)
		return nil
	}, "")

	client := startSession(t, srv, func(keyword, arg string) ([]byte, error) {
		assert.Equal(t, "SENDCERT", keyword)
		assert.Equal(t, "some-name", arg)
		return []byte("cert-bytes"), nil
	})

	_, err := client.Do("FETCH some-name")
	require.NoError(t, err)
	assert.Equal(t, []byte("cert-bytes"), got)
}

func TestServer_InquireSizeLimit(t *testing.T) {
	srv := NewServer()
	srv.Register("FETCH", func(ctx *Context, line string) error {
		_, err := ctx.Inquire("SENDCERT", "", 8)
		return err
	}, "")

	client := startSession(t, srv, func(keyword, arg string) ([]byte, error) {
		return bytes.Repeat([]byte("x"), 64), nil
	})

	_, err := client.Do("FETCH")
	assert.Equal(t, CodeTransport, CodeOf(err))
}

func TestServer_InquireCanceled(t *testing.T) {
	srv := NewServer()
	srv.Register("FETCH", func(ctx *Context, line string) error {
		_, err := ctx.Inquire("SENDCERT", "", 0)
		return err
	}, "")

	client := startSession(t, srv, nil) // nil inquirer cancels
	_, err := client.Do("FETCH")
	assert.Equal(t, CodeCanceled, CodeOf(err))
}

func TestServer_HelpSplitsLines(t *testing.T) {
	srv := NewServer()
	srv.Register("THING", func(ctx *Context, line string) error { return nil },
		"THING <arg>\n\nDoes the thing to ARG.")

	client := startSession(t, srv, nil)
	resp, err := client.Do("HELP THING")
	require.NoError(t, err)

	var lines []string
	for _, st := range resp.Statuses {
		require.Equal(t, "#", st.Keyword)
		lines = append(lines, st.Value)
	}
	assert.Equal(t, []string{"THING <arg>", "", "Does the thing to ARG."}, lines)
}

func TestServer_OptionHandling(t *testing.T) {
	opts := map[string]string{}
	srv := NewServer()
	srv.OnOption = func(key, value string) error {
		if key == "bad" {
			return Errorf(CodeUnknownOption, "unknown option %q", key)
		}
		opts[key] = value
		return nil
	}

	client := startSession(t, srv, nil)

	_, err := client.Do("OPTION force-crl-refresh=1")
	require.NoError(t, err)
	assert.Equal(t, "1", opts["force-crl-refresh"])

	_, err = client.Do("OPTION http-proxy=")
	require.NoError(t, err)

	_, err = client.Do("OPTION bad=1")
	assert.Equal(t, CodeUnknownOption, CodeOf(err))
}

func TestServer_ResetHook(t *testing.T) {
	resets := 0
	srv := NewServer()
	srv.OnReset = func() { resets++ }

	client := startSession(t, srv, nil)
	_, err := client.Do("RESET")
	require.NoError(t, err)
	_, err = client.Do("NOP")
	require.NoError(t, err)
	assert.Equal(t, 1, resets)
}

func TestContext_StatusTruncation(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(&readWriter{w: &buf})

	long := strings.Repeat("a", 600)
	require.NoError(t, ctx.Status("KEYSERVER", long, long))

	line := strings.TrimRight(buf.String(), "\n")
	require.True(t, strings.HasPrefix(line, "S KEYSERVER "))
	payload := strings.TrimPrefix(line, "S KEYSERVER ")
	assert.Len(t, payload, MaxStatusLength)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeCanceled, CodeOf(ErrCanceled))
	assert.Equal(t, CodeGeneral, CodeOf(assertAnError))
	assert.Equal(t, CodeNoData, CodeOf(Errorf(CodeNoData, "nothing")))
}

var assertAnError = errorString("plain error")

type errorString string

func (e errorString) Error() string { return string(e) }

// readWriter adapts separate reader/writer halves for NewContext.
type readWriter struct {
	r strings.Reader
	w *bytes.Buffer
}

func (rw *readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw *readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }
