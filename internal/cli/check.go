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
	isvalidCertFile       string
	isvalidIssuerFile     string
	isvalidOnlyOCSP       bool
	isvalidForceResponder bool
)

var isvalidCmd = &cobra.Command{
	Use:   "isvalid <issuerhash.serialno|fingerprint>",
	Short: "Check certificate validity via CRL or OCSP",
	Long: `Check whether a certificate is valid. An issuerhash.serialno argument
consults the daemon's CRL cache; a 40-digit fingerprint asks an OCSP
responder about the certificate given with --cert-file.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var opts []string
		if isvalidOnlyOCSP {
			opts = append(opts, "--only-ocsp")
		}
		if isvalidForceResponder {
			opts = append(opts, "--force-default-responder")
		}
		line := "ISVALID"
		if len(opts) > 0 {
			line += " " + strings.Join(opts, " ")
		}
		line += " " + escapeArg(args[0])

		err := run(line, inquiryFiles{cert: isvalidCertFile, issuer: isvalidIssuerFile})
		if err != nil {
			handleError(err)
		}
		fmt.Println("certificate is valid")
	},
}

var (
	checkcrlCertFile string
)

var checkcrlCmd = &cobra.Command{
	Use:   "checkcrl [fingerprint]",
	Short: "Check a certificate against its issuer's CRL",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		line := "CHECKCRL"
		if len(args) == 1 {
			line += " " + escapeArg(args[0])
		}
		if err := run(line, inquiryFiles{cert: checkcrlCertFile}); err != nil {
			handleError(err)
		}
		fmt.Println("certificate is not revoked")
	},
}

var (
	checkocspCertFile       string
	checkocspIssuerFile     string
	checkocspForceResponder bool
)

var checkocspCmd = &cobra.Command{
	Use:   "checkocsp [fingerprint]",
	Short: "Check a certificate against its OCSP responder",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		line := "CHECKOCSP"
		if checkocspForceResponder {
			line += " --force-default-responder"
		}
		if len(args) == 1 {
			line += " " + escapeArg(args[0])
		}
		files := inquiryFiles{cert: checkocspCertFile, issuer: checkocspIssuerFile}
		if err := run(line, files); err != nil {
			handleError(err)
		}
		fmt.Println("certificate is not revoked")
	},
}

func init() {
	isvalidCmd.Flags().StringVar(&isvalidCertFile, "cert-file", "",
		"certificate to send when the daemon asks for one (PEM or DER)")
	isvalidCmd.Flags().StringVar(&isvalidIssuerFile, "issuer-file", "",
		"issuer certificate to send on request (PEM or DER)")
	isvalidCmd.Flags().BoolVar(&isvalidOnlyOCSP, "only-ocsp", false,
		"pass --only-ocsp to the daemon")
	isvalidCmd.Flags().BoolVar(&isvalidForceResponder, "force-default-responder", false,
		"use only the daemon's default OCSP responder")

	checkcrlCmd.Flags().StringVar(&checkcrlCertFile, "cert-file", "",
		"certificate to send when the daemon asks for one (PEM or DER)")

	checkocspCmd.Flags().StringVar(&checkocspCertFile, "cert-file", "",
		"certificate to send when the daemon asks for one (PEM or DER)")
	checkocspCmd.Flags().StringVar(&checkocspIssuerFile, "issuer-file", "",
		"issuer certificate to send on request (PEM or DER)")
	checkocspCmd.Flags().BoolVar(&checkocspForceResponder, "force-default-responder", false,
		"use only the daemon's default OCSP responder")
}
