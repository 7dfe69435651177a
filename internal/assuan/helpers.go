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

import "strings"

// HasOption reports whether the leading options of LINE contain NAME.
// NAME must include the "--" prefix. Options end at the first token that
// does not start with "--".
func HasOption(line, name string) bool {
	for _, tok := range leadingOptions(line) {
		if tok == name {
			return true
		}
	}
	return false
}

// SkipOptions returns LINE with all leading "--" option tokens and the
// surrounding whitespace removed, leaving only the command body.
func SkipOptions(line string) string {
	rest := strings.TrimLeft(line, " ")
	for strings.HasPrefix(rest, "--") {
		if i := strings.IndexByte(rest, ' '); i >= 0 {
			rest = strings.TrimLeft(rest[i+1:], " ")
		} else {
			rest = ""
		}
	}
	return rest
}

func leadingOptions(line string) []string {
	var opts []string
	rest := strings.TrimLeft(line, " ")
	for strings.HasPrefix(rest, "--") {
		tok := rest
		if i := strings.IndexByte(rest, ' '); i >= 0 {
			tok, rest = rest[:i], strings.TrimLeft(rest[i+1:], " ")
		} else {
			rest = ""
		}
		opts = append(opts, tok)
	}
	return opts
}
