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
	"fmt"

	"github.com/spf13/cobra"
)

var loadcrlURL bool

var loadcrlCmd = &cobra.Command{
	Use:   "loadcrl <filename|url>",
	Short: "Load a CRL into the daemon's cache",
	Long: `Load a CRL into the daemon's cache from a file on the daemon host, or
with --url from an HTTP(S) location the daemon fetches itself.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		line := "LOADCRL"
		if loadcrlURL {
			line += " --url"
		}
		line += " " + escapeArg(args[0])
		if err := run(line, inquiryFiles{}); err != nil {
			handleError(err)
		}
		fmt.Println("CRL loaded")
	},
}

var listcrlsCmd = &cobra.Command{
	Use:   "listcrls",
	Short: "Print the daemon's cached CRLs",
	Run: func(cmd *cobra.Command, args []string) {
		if err := run("LISTCRLS", inquiryFiles{}); err != nil {
			handleError(err)
		}
	},
}

func init() {
	loadcrlCmd.Flags().BoolVar(&loadcrlURL, "url", false,
		"treat the argument as a URL for the daemon to fetch")
}
