// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package generation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
)

func mustMessages(t *testing.T, raw string) []openai.ChatMessage {
	var messages []openai.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &messages))
	return messages
}

func TestParseMessages(t *testing.T) {
	for _, tc := range []struct {
		name       string
		raw        string
		text       string
		imageKinds []imageinput.Kind
	}{
		{
			name: "string content",
			raw:  `[{"role":"user","content":"a red fox"}]`,
			text: "a red fox",
		},
		{
			name: "last non-empty text wins",
			raw: `[
				{"role":"system","content":"be helpful"},
				{"role":"user","content":"first prompt"},
				{"role":"user","content":"  "},
				{"role":"user","content":"final prompt"}
			]`,
			text: "final prompt",
		},
		{
			name: "text and image_url parts",
			raw: `[{"role":"user","content":[
				{"type":"text","text":"merge"},
				{"type":"image_url","image_url":{"url":"https://example.test/a.png"}}
			]}]`,
			text:       "merge",
			imageKinds: []imageinput.Kind{imageinput.KindURL},
		},
		{
			name: "image_url as bare string",
			raw: `[{"role":"user","content":[
				{"type":"input_text","text":"merge"},
				{"type":"image_url","image_url":"https://example.test/a.png"}
			]}]`,
			text:       "merge",
			imageKinds: []imageinput.Kind{imageinput.KindURL},
		},
		{
			name: "data uri lands on base64",
			raw: `[{"role":"user","content":[
				{"type":"text","text":"p"},
				{"type":"image_url","image_url":{"url":"data:image/png;base64,aGVsbG8="}}
			]}]`,
			text:       "p",
			imageKinds: []imageinput.Kind{imageinput.KindBase64},
		},
		{
			name: "explicit base64 key skips detection",
			raw: `[{"role":"user","content":[
				{"type":"input_image","image_base64":"aGVsbG8="},
				{"type":"text","text":"p"}
			]}]`,
			text:       "p",
			imageKinds: []imageinput.Kind{imageinput.KindBase64},
		},
		{
			name: "single object content",
			raw:  `[{"role":"user","content":{"type":"text","text":"solo"}}]`,
			text: "solo",
		},
		{
			name: "null content contributes nothing",
			raw:  `[{"role":"assistant","content":null},{"role":"user","content":"p"}]`,
			text: "p",
		},
		{
			name: "images accumulate across messages",
			raw: `[
				{"role":"user","content":[{"type":"image_url","image_url":{"url":"https://example.test/a.png"}}]},
				{"role":"user","content":[
					{"type":"image_url","image_url":{"url":"https://example.test/b.png"}},
					{"type":"text","text":"combine"}
				]}
			]`,
			text:       "combine",
			imageKinds: []imageinput.Kind{imageinput.KindURL, imageinput.KindURL},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseMessages(mustMessages(t, tc.raw))
			require.Equal(t, tc.text, parsed.Text)
			require.Len(t, parsed.Images, len(tc.imageKinds))
			for i, kind := range tc.imageKinds {
				require.Equal(t, kind, parsed.Images[i].Kind())
			}
		})
	}
}

func TestParseMessagesRoundTrip(t *testing.T) {
	raw := `[
		{"role":"user","content":[
			{"type":"text","text":"merge these"},
			{"type":"image_url","image_url":{"url":"https://example.test/a.png"}},
			{"type":"input_image","image_base64":"aGVsbG8gd29ybGQ="}
		]}
	]`
	parsed := ParseMessages(mustMessages(t, raw))
	again := ParseMessages(parsed.Serialize())
	require.Equal(t, parsed.Text, again.Text)
	require.Len(t, again.Images, len(parsed.Images))
	for i := range parsed.Images {
		require.Equal(t, parsed.Images[i].Kind(), again.Images[i].Kind())
		require.Equal(t, parsed.Images[i].String(), again.Images[i].String())
	}
}

func TestParseMessagesImageOrder(t *testing.T) {
	raw := `[{"role":"user","content":[
		{"type":"text","text":"p"},
		{"type":"image_url","image_url":{"url":"https://example.test/1.png"}},
		{"type":"image_url","image_url":{"url":"https://example.test/2.png"}},
		{"type":"image_url","image_url":{"url":"https://example.test/3.png"}}
	]}]`
	parsed := ParseMessages(mustMessages(t, raw))
	require.Len(t, parsed.Images, 3)
	for i, img := range parsed.Images {
		require.Contains(t, img.String(), string(rune('1'+i)))
	}
}
