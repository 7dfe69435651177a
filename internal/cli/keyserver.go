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
	"strings"

	"github.com/spf13/cobra"
)

var keyserverClear bool

var keyserverCmd = &cobra.Command{
	Use:   "keyserver [uri]...",
	Short: "List or modify the session keyserver list",
	Long: `Without arguments, print the daemon's keyserver list for this session.
URIs given as arguments are added to the front of the list. Note that
the list is per protocol session; changes made here do not outlive the
trustctl invocation.`,
	Run: func(cmd *cobra.Command, args []string) {
		line := "KEYSERVER"
		if keyserverClear {
			line += " --clear"
		}
		if len(args) > 0 {
			escaped := make([]string, len(args))
			for i, arg := range args {
				escaped[i] = escapeArg(arg)
			}
			line += " " + strings.Join(escaped, " ")
		}
		if err := run(line, inquiryFiles{}); err != nil {
			handleError(err)
		}
	},
}

var ksQuick bool

var ksSearchCmd = &cobra.Command{
	Use:   "ks-search <pattern>...",
	Short: "Search the keyservers for keys",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		line := "KS_SEARCH"
		if ksQuick {
			line += " --quick"
		}
		for _, arg := range args {
			line += " " + escapeArg(arg)
		}
		if err := run(line, inquiryFiles{}); err != nil {
			handleError(err)
		}
	},
}

var ksGetCmd = &cobra.Command{
	Use:   "ks-get <pattern>...",
	Short: "Fetch keys from the keyservers",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		line := "KS_GET"
		if ksQuick {
			line += " --quick"
		}
		for _, arg := range args {
			line += " " + escapeArg(arg)
		}
		if err := run(line, inquiryFiles{}); err != nil {
			handleError(err)
		}
	},
}

var ksFetchCmd = &cobra.Command{
	Use:   "ks-fetch <url>",
	Short: "Fetch a keyblock from a direct URL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run("KS_FETCH "+escapeArg(args[0]), inquiryFiles{}); err != nil {
			handleError(err)
		}
	},
}

var (
	ksPutFile string
	ksPutInfo string
)

var ksPutCmd = &cobra.Command{
	Use:   "ks-put",
	Short: "Publish a keyblock to the keyservers",
	Run: func(cmd *cobra.Command, args []string) {
		files := inquiryFiles{keyblock: ksPutFile, info: ksPutInfo}
		if err := run("KS_PUT", files); err != nil {
			handleError(err)
		}
		fmt.Println("keyblock published")
	},
}

func init() {
	keyserverCmd.Flags().BoolVar(&keyserverClear, "clear", false,
		"clear the session keyserver list first")

	ksSearchCmd.Flags().BoolVar(&ksQuick, "quick", false,
		"use shorter network timeouts")
	ksGetCmd.Flags().BoolVar(&ksQuick, "quick", false,
		"use shorter network timeouts")

	ksPutCmd.Flags().StringVar(&ksPutFile, "keyblock-file", "",
		"file holding the keyblock to publish")
	ksPutCmd.Flags().StringVar(&ksPutInfo, "keyblock-info", "",
		"colon format info lines describing the keyblock")
	_ = ksPutCmd.MarkFlagRequired("keyblock-file")
}
