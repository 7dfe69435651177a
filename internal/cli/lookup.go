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
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	lookupURL       bool
	lookupSingle    bool
	lookupCacheOnly bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <pattern>...",
	Short: "Look up certificates in the daemon's cache",
	Long: `Look up cached certificates by fingerprint, <email> address, exact
subject DN (prefixed with /) or subject substring. Matches are printed
as PEM to stdout.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var opts []string
		if lookupURL {
			opts = append(opts, "--url")
		}
		if lookupSingle {
			opts = append(opts, "--single")
		}
		if lookupCacheOnly {
			opts = append(opts, "--cache-only")
		}
		escaped := make([]string, len(args))
		for i, arg := range args {
			escaped[i] = escapeArg(arg)
		}
		line := "LOOKUP"
		if len(opts) > 0 {
			line += " " + strings.Join(opts, " ")
		}
		line += " " + strings.Join(escaped, " ")

		client, conn, err := dial()
		if err != nil {
			handleError(err)
		}
		defer conn.Close()

		resp, err := client.Do(line)
		if resp != nil {
			for _, status := range resp.Statuses {
				fmt.Fprintf(os.Stderr, "%s %s\n", status.Keyword, status.Value)
			}
			for _, block := range resp.Blocks {
				_ = pem.Encode(os.Stdout, &pem.Block{Type: "CERTIFICATE", Bytes: block})
			}
		}
		if err != nil {
			handleError(err)
		}
	},
}

var cachecertFile string

var cachecertCmd = &cobra.Command{
	Use:   "cachecert",
	Short: "Insert a certificate into the daemon's cache",
	Run: func(cmd *cobra.Command, args []string) {
		if err := run("CACHECERT", inquiryFiles{cert: cachecertFile}); err != nil {
			handleError(err)
		}
		fmt.Println("certificate cached")
	},
}

func init() {
	lookupCmd.Flags().BoolVar(&lookupURL, "url", false,
		"treat the argument as a URL to retrieve one certificate from")
	lookupCmd.Flags().BoolVar(&lookupSingle, "single", false,
		"stop after the first match")
	lookupCmd.Flags().BoolVar(&lookupCacheOnly, "cache-only", false,
		"fail when nothing is cached instead of returning empty")

	cachecertCmd.Flags().StringVar(&cachecertFile, "cert-file", "",
		"certificate to cache (PEM or DER)")
	_ = cachecertCmd.MarkFlagRequired("cert-file")
}
