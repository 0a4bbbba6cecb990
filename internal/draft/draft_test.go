// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package draft

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func imageRequest(model string) ImageRequest {
	params, _ := Lookup(Resolution2K, "16:9")
	return ImageRequest{
		Model:          model,
		Prompt:         "a red fox",
		NegativePrompt: "blurry",
		SampleStrength: 0.5,
		Params:         params,
	}
}

func TestTextToImageDocument(t *testing.T) {
	doc := TextToImage(imageRequest("high_aes_general_v30l:general_v3.0_18b"))
	content, err := doc.Content()
	require.NoError(t, err)

	root := gjson.Parse(content)
	require.Equal(t, "draft", root.Get("type").String())
	require.Equal(t, root.Get("main_component_id").String(), root.Get("component_list.0.id").String())
	require.Equal(t, "generate", root.Get("component_list.0.generate_type").String())

	core := root.Get("component_list.0.abilities.generate.core_param")
	require.Equal(t, "a red fox", core.Get("prompt").String())
	require.Equal(t, "blurry", core.Get("negative_prompt").String())
	require.False(t, core.Get("intelligent_ratio").Bool())
	require.EqualValues(t, 3, core.Get("image_ratio").Int())
	require.EqualValues(t, 2560, core.Get("large_image_info.width").Int())
	require.EqualValues(t, 1440, core.Get("large_image_info.height").Int())
	require.Equal(t, "2k", core.Get("large_image_info.resolution_type").String())

	seed := core.Get("seed").Int()
	require.GreaterOrEqual(t, seed, int64(2_500_000_000))
	require.Less(t, seed, int64(2_600_000_000))
}

func TestEveryNodeHasFreshID(t *testing.T) {
	doc := TextToImage(imageRequest("m"))
	content, err := doc.Content()
	require.NoError(t, err)

	seen := map[string]bool{}
	var walk func(gjson.Result)
	walk = func(v gjson.Result) {
		if id := v.Get("id"); id.Exists() && id.String() != "" {
			require.False(t, seen[id.String()], "duplicate node id %s", id.String())
			seen[id.String()] = true
		}
		v.ForEach(func(_, child gjson.Result) bool {
			if child.IsObject() || child.IsArray() {
				walk(child)
			}
			return true
		})
	}
	walk(gjson.Parse(content))
	require.Greater(t, len(seen), 5)
}

func TestBlendDocument(t *testing.T) {
	uris := []string{"tos/one", "tos/two", "tos/three"}
	doc := Blend(imageRequest("m"), uris)
	content, err := doc.Content()
	require.NoError(t, err)

	blend := gjson.Parse(content).Get("component_list.0.abilities.blend")
	require.Equal(t, "blend", gjson.Parse(content).Get("component_list.0.generate_type").String())
	// The prompt is prefixed for reference-image mode.
	require.Equal(t, "##a red fox", blend.Get("core_param.prompt").String())

	abilities := blend.Get("ability_list").Array()
	require.Len(t, abilities, len(uris))
	for i, a := range abilities {
		require.Equal(t, "byte_edit", a.Get("name").String())
		require.Equal(t, uris[i], a.Get("image_uri_list.0").String())
		require.Equal(t, uris[i], a.Get("image_list.0.image_uri").String())
		require.Equal(t, "upload", a.Get("image_list.0.source_from").String())
		require.EqualValues(t, 1, a.Get("image_list.0.platform_type").Int())
	}

	placeholders := blend.Get("prompt_placeholder_info_list").Array()
	require.Len(t, placeholders, len(uris))
	for i, p := range placeholders {
		require.EqualValues(t, i, p.Get("ability_index").Int())
	}
}

func TestVideoDocument(t *testing.T) {
	params, _ := Lookup(Resolution1K, "16:9")
	doc := Video(VideoRequest{
		Model:           "dreamina_ic_generate_video_model_vgfm_3.0",
		Prompt:          "waves at dusk",
		DurationSeconds: 10,
		Params:          params,
		FrameURIs:       []string{"tos/first", "tos/last"},
	})
	content, err := doc.Content()
	require.NoError(t, err)

	root := gjson.Parse(content)
	require.Equal(t, "gen_video", root.Get("component_list.0.generate_type").String())
	gv := root.Get("component_list.0.abilities.gen_video")
	require.Equal(t, "dreamina_ic_generate_video_model_vgfm_3.0", gv.Get("model_req_key").String())
	input := gv.Get("video_gen_inputs.0")
	require.EqualValues(t, 10_000, input.Get("duration_ms").Int())
	// First frame precedes last frame.
	require.Equal(t, "tos/first", input.Get("first_frame_image.image_uri").String())
	require.Equal(t, "tos/last", input.Get("end_frame_image.image_uri").String())
}

func TestVideoDocumentWithoutFrames(t *testing.T) {
	params, _ := Lookup(Resolution1K, "1:1")
	doc := Video(VideoRequest{Model: "m", Prompt: "p", DurationSeconds: 4, Params: params})
	content, err := doc.Content()
	require.NoError(t, err)
	input := gjson.Parse(content).Get("component_list.0.abilities.gen_video.video_gen_inputs.0")
	require.False(t, input.Get("first_frame_image").Exists())
	require.False(t, input.Get("end_frame_image").Exists())
}

func TestSubmissionBody(t *testing.T) {
	doc := TextToImage(imageRequest("m"))
	sub, err := NewSubmission(doc, "m", 4, 513695)
	require.NoError(t, err)

	body, err := sub.Body()
	require.NoError(t, err)

	root := gjson.ParseBytes(body)
	require.Equal(t, "m", root.Get("extend.root_model").String())
	require.Equal(t, sub.SubmitID, root.Get("submit_id").String())
	require.EqualValues(t, 513695, root.Get("http_common_info.aid").Int())
	// draft_content is a string field containing the draft JSON.
	require.Equal(t, gjson.String, root.Get("draft_content").Type)
	inner := gjson.Parse(root.Get("draft_content").String())
	require.Equal(t, "draft", inner.Get("type").String())
	// metrics_extra is itself a JSON string.
	metrics := gjson.Parse(root.Get("metrics_extra").String())
	require.EqualValues(t, 4, metrics.Get("generateCount").Int())
}

func TestLookupAllPairs(t *testing.T) {
	ratios := []Ratio{"1:1", "4:3", "3:4", "16:9", "9:16", "21:9", "9:21", "3:2", "2:3"}
	for _, res := range []Resolution{Resolution1K, Resolution2K, Resolution4K} {
		for _, ratio := range ratios {
			params, err := Lookup(res, ratio)
			require.NoError(t, err, "%s %s", res, ratio)
			require.Positive(t, params.Width*params.Height)
			require.NotEmpty(t, params.ResolutionType)
			require.Positive(t, params.ImageRatio)
		}
	}
}

func TestLookupUnsupported(t *testing.T) {
	_, err := Lookup("8k", "1:1")
	require.Error(t, err)
	_, err = Lookup(Resolution1K, "7:5")
	require.Error(t, err)
}

func TestLookupDefaults(t *testing.T) {
	params, err := Lookup("", "")
	require.NoError(t, err)
	require.Equal(t, 1024, params.Width)
	require.Equal(t, 1024, params.Height)
}
