// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGit(t *testing.T) {
	for _, tc := range []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "empty", raw: "", expected: "dev"},
		{name: "garbage", raw: "not-a-version", expected: "dev"},
		{name: "release tag", raw: "v0.3.0-0-g1234abc", expected: "v0.3.0"},
		{name: "ahead of tag", raw: "v0.3.0-7-g1234abc", expected: "1234abc (v0.3.0, +7)"},
		{name: "tag with dash", raw: "v0.3.0-rc1-2-gdeadbee", expected: "deadbee (v0.3.0-rc1, +2)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, parseGit(tc.raw).String())
		})
	}
}
