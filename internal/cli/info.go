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

var getinfoCmd = &cobra.Command{
	Use:   "getinfo <what>",
	Short: "Query daemon information",
	Long: `Query the daemon for runtime information. WHAT is one of version, pid,
tor or socket_name.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run("GETINFO "+escapeArg(args[0]), inquiryFiles{}); err != nil {
			handleError(err)
		}
		fmt.Println()
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the daemon to shut down",
	Run: func(cmd *cobra.Command, args []string) {
		if err := run("SHUTDOWN", inquiryFiles{}); err != nil {
			handleError(err)
		}
		fmt.Println("shutdown requested")
	},
}
