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

package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"plus is space", "a+b", "a b"},
		{"percent escapes", "%41%42", "AB"},
		{"mixed", "John+Doe+%3Cjohn%40example.org%3E", "John Doe <john@example.org>"},
		{"truncated escape passes through", "%4", "%4"},
		{"lone percent passes through", "abc%", "abc%"},
		{"non-hex after percent passes through", "%zz", "%zz"},
		{"escaped nul", "a%00b", "a\x00b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []byte(tt.want), Decode(tt.input))
		})
	}
}

func TestDecode_NeverExpands(t *testing.T) {
	inputs := []string{
		"", "%", "%%", "%%%", "%4", "%41", "++++", "a+b%20c%", "%zz%41+", "plain text",
	}
	for _, in := range inputs {
		assert.LessOrEqual(t, len(Decode(in)), len(in), "input %q", in)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte("hello world"),
		[]byte("100% pure"),
		[]byte("a+b"),
		[]byte("line1\r\nline2"),
		{0x00, 0x01, 0xfe, 0xff},
	}
	for _, in := range inputs {
		assert.Equal(t, in, Decode(Encode(in)), "input %q", in)
	}
}
