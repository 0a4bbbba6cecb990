// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package draft

import (
	"fmt"
	"regexp"
	"strconv"
)

// ModelNanoBanana is the model name that forces a fixed sizing override.
const ModelNanoBanana = "nanobanana"

// ModelTable maps public model names to upstream request keys. The
// international table rejects unknown models while the domestic one falls
// back to its default; the asymmetry mirrors the observed backends and is
// kept explicit through StrictUnknown so it can be flipped per deployment.
type ModelTable struct {
	Entries       map[string]string
	Default       string
	StrictUnknown bool
}

// Resolve maps a public model name to the upstream key.
func (t *ModelTable) Resolve(name string) (string, error) {
	if name == "" {
		name = t.Default
	}
	if key, ok := t.Entries[name]; ok {
		return key, nil
	}
	if t.StrictUnknown {
		return "", fmt.Errorf("unknown model %q", name)
	}
	return t.Entries[t.Default], nil
}

// Names lists the public model names of the table.
func (t *ModelTable) Names() []string {
	names := make([]string, 0, len(t.Entries))
	for name := range t.Entries {
		names = append(names, name)
	}
	return names
}

// DomesticImage returns the image model table of the cn backend.
func DomesticImage() *ModelTable {
	return &ModelTable{
		Default: "jimeng-3.0",
		Entries: map[string]string{
			"jimeng-4.0":     "high_aes_general_v40",
			"jimeng-3.1":     "high_aes_general_v30l_art_fangzhou:general_v3.0_18b",
			"jimeng-3.0":     "high_aes_general_v30l:general_v3.0_18b",
			"jimeng-2.1":     "high_aes_general_v21_L:general_v2.1_L",
			"jimeng-2.0-pro": "high_aes_general_v20_L:general_v2.0_L",
			"jimeng-2.0":     "high_aes_general_v20:general_v2.0",
			ModelNanoBanana:  "external_model_gempix2",
		},
	}
}

// InternationalImage returns the image model table of the overseas
// backends. strict controls the unknown-model policy.
func InternationalImage(strict bool) *ModelTable {
	return &ModelTable{
		Default:       "jimeng-3.0",
		StrictUnknown: strict,
		Entries: map[string]string{
			"jimeng-4.0": "high_aes_general_v40",
			"jimeng-3.0": "high_aes_general_v30l:general_v3.0_18b",
			"jimeng-2.1": "high_aes_general_v21_L:general_v2.1_L",
		},
	}
}

// DomesticVideo returns the video model table of the cn backend.
func DomesticVideo() *ModelTable {
	return &ModelTable{
		Default: "jimeng-video-3.0",
		Entries: map[string]string{
			"jimeng-video-3.0":     "dreamina_ic_generate_video_model_vgfm_3.0",
			"jimeng-video-2.0-pro": "dreamina_ic_generate_video_model_vgfm1.0",
			"jimeng-video-2.0":     "dreamina_ic_generate_video_model_vgfm_lite",
		},
	}
}

// InternationalVideo returns the video model table of the overseas
// backends.
func InternationalVideo(strict bool) *ModelTable {
	return &ModelTable{
		Default:       "jimeng-video-3.0",
		StrictUnknown: strict,
		Entries: map[string]string{
			"jimeng-video-3.0": "dreamina_ic_generate_video_model_vgfm_3.0",
			"jimeng-video-2.0": "dreamina_ic_generate_video_model_vgfm_lite",
		},
	}
}

var (
	multiImageRe = regexp.MustCompile(`连续|绘本|故事|\d+张`)
	imageCountRe = regexp.MustCompile(`(\d+)张`)
)

// defaultImageCount is how many candidates the upstream produces for one
// draft, and also the fallback when a multi-image prompt names no count.
const defaultImageCount = 4

// ExpectedImageCount returns how many artifacts one image draft should
// yield. Plain drafts produce the upstream's four candidates; a jimeng-4.0
// prompt in one of the multi-image forms asks for its own count.
func ExpectedImageCount(model, prompt string) int {
	if model != "jimeng-4.0" || !multiImageRe.MatchString(prompt) {
		return defaultImageCount
	}
	if m := imageCountRe.FindStringSubmatch(prompt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return defaultImageCount
}
