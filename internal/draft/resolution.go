// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package draft

import (
	"fmt"
	"log/slog"
)

// Resolution is the client-facing resolution class.
type Resolution string

const (
	Resolution1K Resolution = "1k"
	Resolution2K Resolution = "2k"
	Resolution4K Resolution = "4k"
)

// Ratio is the client-facing aspect ratio.
type Ratio string

const (
	DefaultResolution = Resolution1K
	DefaultRatio      = Ratio("1:1")
)

// Params is the upstream sizing block derived from (resolution, ratio).
type Params struct {
	Width          int
	Height         int
	ImageRatio     int
	ResolutionType string
}

// imageRatioCodes is the upstream's aspect ratio enum.
var imageRatioCodes = map[Ratio]int{
	"1:1":  1,
	"3:4":  2,
	"16:9": 3,
	"4:3":  4,
	"9:16": 5,
	"3:2":  6,
	"2:3":  7,
	"21:9": 8,
	"9:21": 9,
}

type dimensions struct{ w, h int }

var resolutionTable = map[Resolution]map[Ratio]dimensions{
	Resolution1K: {
		"1:1":  {1024, 1024},
		"4:3":  {1152, 864},
		"3:4":  {864, 1152},
		"16:9": {1280, 720},
		"9:16": {720, 1280},
		"21:9": {1344, 576},
		"9:21": {576, 1344},
		"3:2":  {1248, 832},
		"2:3":  {832, 1248},
	},
	Resolution2K: {
		"1:1":  {2048, 2048},
		"4:3":  {2304, 1728},
		"3:4":  {1728, 2304},
		"16:9": {2560, 1440},
		"9:16": {1440, 2560},
		"21:9": {3024, 1296},
		"9:21": {1296, 3024},
		"3:2":  {2496, 1664},
		"2:3":  {1664, 2496},
	},
	Resolution4K: {
		"1:1":  {4096, 4096},
		"4:3":  {4608, 3456},
		"3:4":  {3456, 4608},
		"16:9": {5120, 2880},
		"9:16": {2880, 5120},
		"21:9": {6048, 2592},
		"9:21": {2592, 6048},
		"3:2":  {4992, 3328},
		"2:3":  {3328, 4992},
	},
}

// nanoBananaParams is the forced sizing for the nanobanana model, applied
// regardless of what the client asked for.
var nanoBananaParams = Params{Width: 1024, Height: 1024, ImageRatio: 1, ResolutionType: "2k"}

// Lookup resolves the sizing block for a supported (resolution, ratio)
// pair. Empty inputs take the defaults.
func Lookup(resolution Resolution, ratio Ratio) (Params, error) {
	if resolution == "" {
		resolution = DefaultResolution
	}
	if ratio == "" {
		ratio = DefaultRatio
	}
	byRatio, ok := resolutionTable[resolution]
	if !ok {
		return Params{}, fmt.Errorf("unsupported resolution %q", resolution)
	}
	dims, ok := byRatio[ratio]
	if !ok {
		return Params{}, fmt.Errorf("unsupported ratio %q", ratio)
	}
	return Params{
		Width:          dims.w,
		Height:         dims.h,
		ImageRatio:     imageRatioCodes[ratio],
		ResolutionType: string(resolution),
	}, nil
}

// ParamsFor resolves sizing for a model, applying per-model overrides.
func ParamsFor(model string, resolution Resolution, ratio Ratio, logger *slog.Logger) (Params, error) {
	if model == ModelNanoBanana {
		if resolution != "" || ratio != "" {
			logger.Info("overriding resolution for model",
				"model", model, "requested_resolution", string(resolution), "requested_ratio", string(ratio),
				"width", nanoBananaParams.Width, "height", nanoBananaParams.Height, "resolution_type", nanoBananaParams.ResolutionType)
		}
		return nanoBananaParams, nil
	}
	return Lookup(resolution, ratio)
}
