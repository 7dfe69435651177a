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

// Package cli implements the trustctl command line client.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	socketPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "trustctl",
	Short: "trustctl - client for the trustd certificate validity daemon",
	Long: `trustctl talks to a running trustd daemon over its unix socket.

It covers the daemon's protocol commands: revocation checks against
CRLs and OCSP responders, certificate cache lookups, CRL loading, chain
validation and OpenPGP keyserver access.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/trustd/trustd.sock",
		"path to the trustd unix socket")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(isvalidCmd)
	rootCmd.AddCommand(checkcrlCmd)
	rootCmd.AddCommand(checkocspCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(cachecertCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(loadcrlCmd)
	rootCmd.AddCommand(listcrlsCmd)
	rootCmd.AddCommand(keyserverCmd)
	rootCmd.AddCommand(ksSearchCmd)
	rootCmd.AddCommand(ksGetCmd)
	rootCmd.AddCommand(ksFetchCmd)
	rootCmd.AddCommand(ksPutCmd)
	rootCmd.AddCommand(getinfoCmd)
	rootCmd.AddCommand(shutdownCmd)
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	fmt.Fprintf(os.Stderr, "trustctl: %v\n", err)
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
