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

var (
	validateCertFile   string
	validateChainFile  string
	validateIssuerFile string
	validateSystrust   bool
	validateTLS        bool
	validateNoCRL      bool
	validateTrust      bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run full chain validation on a certificate",
	Long: `Validate a certificate chain through the daemon. With --tls a PEM
chain file (subject certificate first) is sent; otherwise the single
certificate from --cert-file. Unless --systrust is given the daemon
asks whether the chain's root is trusted, answered here by --trust.`,
	Run: func(cmd *cobra.Command, args []string) {
		var opts []string
		if validateSystrust {
			opts = append(opts, "--systrust")
		}
		if validateTLS {
			opts = append(opts, "--tls")
		}
		if validateNoCRL {
			opts = append(opts, "--no-crl")
		}
		line := "VALIDATE"
		if len(opts) > 0 {
			line += " " + strings.Join(opts, " ")
		}
		files := inquiryFiles{
			cert:    validateCertFile,
			chain:   validateChainFile,
			issuer:  validateIssuerFile,
			trusted: validateTrust,
		}
		if err := run(line, files); err != nil {
			handleError(err)
		}
		fmt.Println("certificate chain is valid")
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateCertFile, "cert-file", "",
		"certificate to validate (PEM or DER)")
	validateCmd.Flags().StringVar(&validateChainFile, "chain-file", "",
		"PEM chain to validate with --tls, subject certificate first")
	validateCmd.Flags().StringVar(&validateIssuerFile, "issuer-file", "",
		"issuer certificate to send on request (PEM or DER)")
	validateCmd.Flags().BoolVar(&validateSystrust, "systrust", false,
		"check the chain against the system trust store")
	validateCmd.Flags().BoolVar(&validateTLS, "tls", false,
		"validate for TLS server use")
	validateCmd.Flags().BoolVar(&validateNoCRL, "no-crl", false,
		"skip revocation checking")
	validateCmd.Flags().BoolVar(&validateTrust, "trust", false,
		"answer the daemon's root trust inquiry affirmatively")
}
