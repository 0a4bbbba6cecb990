// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package region resolves the regional backend from the session token's
// prefix. The resolution is a pure table lookup and never performs I/O.
package region

import "strings"

// Region identifies one regional backend.
type Region string

const (
	RegionCN Region = "cn"
	RegionUS Region = "us"
	RegionHK Region = "hk"
	RegionJP Region = "jp"
	RegionSG Region = "sg"
)

// Info describes everything request construction needs to know about a
// regional backend. It is derived once per request from the session token
// and never mutated afterwards.
type Info struct {
	Region Region
	// International is true for every region except cn.
	International bool
	// ImagexHost is the object-store API endpoint used for ApplyImageUpload
	// and CommitImageUpload.
	ImagexHost string
	// Origin is the base URL of the generation API.
	Origin string
	// Referer is sent on every generation API call.
	Referer string
	// AWSRegion is the region string placed in the sigv4 credential scope.
	AWSRegion string
	// AssistantID is the regional aid query parameter.
	AssistantID string
}

var regionTable = map[Region]Info{
	RegionCN: {
		Region:      RegionCN,
		ImagexHost:  "https://imagex.bytedanceapi.com",
		Origin:      "https://jimeng.jianying.com",
		Referer:     "https://jimeng.jianying.com/ai-tool/image/generate",
		AWSRegion:   "cn-north-1",
		AssistantID: "513695",
	},
	RegionUS: {
		Region:        RegionUS,
		International: true,
		ImagexHost:    "https://imagex-us-east-1.byteintlapi.com",
		Origin:        "https://dreamina.capcut.com",
		Referer:       "https://dreamina.capcut.com/ai-tool/image/generate",
		AWSRegion:     "us-east-1",
		AssistantID:   "513697",
	},
	RegionHK: {
		Region:        RegionHK,
		International: true,
		ImagexHost:    "https://imagex-ap-east-1.byteintlapi.com",
		Origin:        "https://dreamina.capcut.com",
		Referer:       "https://dreamina.capcut.com/ai-tool/image/generate",
		AWSRegion:     "ap-east-1",
		AssistantID:   "513698",
	},
	RegionJP: {
		Region:        RegionJP,
		International: true,
		ImagexHost:    "https://imagex-ap-northeast-1.byteintlapi.com",
		Origin:        "https://dreamina.capcut.com",
		Referer:       "https://dreamina.capcut.com/ai-tool/image/generate",
		AWSRegion:     "ap-northeast-1",
		AssistantID:   "513699",
	},
	RegionSG: {
		Region:        RegionSG,
		International: true,
		ImagexHost:    "https://imagex-ap-singapore-1.byteintlapi.com",
		Origin:        "https://dreamina.capcut.com",
		Referer:       "https://dreamina.capcut.com/ai-tool/image/generate",
		AWSRegion:     "ap-southeast-1",
		AssistantID:   "513700",
	},
}

// Resolve splits the session token into its region and the raw session
// secret. A token without a recognized region prefix belongs to cn and is
// used whole as the secret.
func Resolve(token string) (Info, string) {
	if prefix, rest, ok := strings.Cut(token, "-"); ok {
		if info, known := regionTable[Region(prefix)]; known {
			return info, rest
		}
	}
	return regionTable[RegionCN], token
}

// FormatAuth renders the upstream Authorization header value for the given
// region and raw session secret. The cn region carries no prefix.
func FormatAuth(info Info, secret string) string {
	if info.Region == RegionCN {
		return "Bearer " + secret
	}
	return "Bearer " + string(info.Region) + "-" + secret
}
