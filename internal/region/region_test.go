// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name          string
		token         string
		wantRegion    Region
		wantSecret    string
		international bool
	}{
		{name: "bare token is cn", token: "abc123", wantRegion: RegionCN, wantSecret: "abc123"},
		{name: "us prefix", token: "us-abc123", wantRegion: RegionUS, wantSecret: "abc123", international: true},
		{name: "hk prefix", token: "hk-abc123", wantRegion: RegionHK, wantSecret: "abc123", international: true},
		{name: "jp prefix", token: "jp-abc123", wantRegion: RegionJP, wantSecret: "abc123", international: true},
		{name: "sg prefix", token: "sg-abc123", wantRegion: RegionSG, wantSecret: "abc123", international: true},
		{name: "unknown prefix stays cn", token: "eu-abc123", wantRegion: RegionCN, wantSecret: "eu-abc123"},
		{name: "dash inside secret", token: "us-abc-def", wantRegion: RegionUS, wantSecret: "abc-def", international: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, secret := Resolve(tt.token)
			require.Equal(t, tt.wantRegion, info.Region)
			require.Equal(t, tt.wantSecret, secret)
			require.Equal(t, tt.international, info.International)
			require.NotEmpty(t, info.ImagexHost)
			require.NotEmpty(t, info.Origin)
			require.NotEmpty(t, info.AWSRegion)
			require.NotEmpty(t, info.AssistantID)
		})
	}
}

// Round-tripping the resolved region and secret through FormatAuth must
// reproduce the original token, whatever the prefix.
func TestFormatAuthRoundTrip(t *testing.T) {
	for _, token := range []string{"abc123", "us-abc123", "hk-abc123", "jp-abc123", "sg-abc123", "us-a-b-c"} {
		info, secret := Resolve(token)
		require.Equal(t, "Bearer "+token, FormatAuth(info, secret))
	}
}

func TestResolveIsPure(t *testing.T) {
	first, _ := Resolve("us-x")
	second, _ := Resolve("us-x")
	require.Equal(t, first, second)
}
