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

package cli

import (
	"encoding/pem"
	"fmt"
	"net"
	"os"

	"github.com/jeremyhahn/go-trustd/internal/assuan"
	"github.com/jeremyhahn/go-trustd/pkg/escape"
)

// inquiryFiles maps the daemon's inquiry keywords to files given on the
// command line. Certificate files may be PEM or DER.
type inquiryFiles struct {
	cert     string // SENDCERT, TARGETCERT
	issuer   string // SENDISSUERCERT, SENDCERT_SKI
	chain    string // CERTLIST (PEM, subject first)
	keyblock string // KEYBLOCK
	info     string // KEYBLOCK_INFO
	trusted  bool   // ISTRUSTED answer
}

// dial opens a session on the daemon socket.
func dial() (*assuan.Client, net.Conn, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to %s: %w", socketPath, err)
	}
	client, err := assuan.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	printVerbose("connected: %s", client.Hello)
	return client, conn, nil
}

// run sends one command and prints the response: data blocks to stdout,
// status lines to stderr.
func run(command string, files inquiryFiles) error {
	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	client.Inquirer = files.answer
	printVerbose("-> %s", command)
	resp, err := client.Do(command)
	if resp != nil {
		for _, status := range resp.Statuses {
			fmt.Fprintf(os.Stderr, "%s %s\n", status.Keyword, status.Value)
		}
		if len(resp.Data) > 0 {
			os.Stdout.Write(resp.Data)
		}
	}
	return err
}

func (f inquiryFiles) answer(keyword, arg string) ([]byte, error) {
	printVerbose("<- INQUIRE %s %s", keyword, arg)
	switch keyword {
	case "SENDCERT", "TARGETCERT":
		return readCertDER(f.cert)
	case "SENDISSUERCERT", "SENDCERT_SKI":
		return readCertDER(f.issuer)
	case "CERTLIST":
		return readFile(f.chain)
	case "KEYBLOCK":
		return readFile(f.keyblock)
	case "KEYBLOCK_INFO":
		return []byte(f.info), nil
	case "ISTRUSTED":
		if f.trusted {
			return []byte("1"), nil
		}
		return []byte("0"), nil
	}
	return nil, fmt.Errorf("no answer for inquiry %s", keyword)
}

func readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("no file provided for inquiry")
	}
	return os.ReadFile(path)
}

// readCertDER reads a certificate file, unwrapping a PEM CERTIFICATE
// block when present.
func readCertDER(path string) ([]byte, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(data); block != nil && block.Type == "CERTIFICATE" {
		return block.Bytes, nil
	}
	return data, nil
}

// escapeArg protocol-escapes a command line argument.
func escapeArg(s string) string {
	return escape.Encode([]byte(s))
}
