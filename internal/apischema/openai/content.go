// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openai

import (
	"encoding/json"
	"fmt"
)

// MessageContent is the union of content shapes accepted in a chat
// message: a plain string, an array of parts, a single part object, or
// null. IsText distinguishes the string form from an empty part list.
type MessageContent struct {
	IsText bool
	Text   string
	Parts  []ContentPart
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	switch {
	case len(data) == 0 || string(data) == "null":
		*c = MessageContent{}
		return nil
	case data[0] == '"':
		c.Parts = nil
		c.IsText = true
		return json.Unmarshal(data, &c.Text)
	case data[0] == '[':
		c.IsText = false
		c.Text = ""
		return json.Unmarshal(data, &c.Parts)
	case data[0] == '{':
		var part ContentPart
		if err := json.Unmarshal(data, &part); err != nil {
			return err
		}
		*c = MessageContent{Parts: []ContentPart{part}}
		return nil
	default:
		return fmt.Errorf("message content must be a string, array or object")
	}
}

// MarshalJSON preserves the incoming shape: string content round-trips as
// a string, everything else as a part array.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsText {
		return json.Marshal(c.Text)
	}
	if c.Parts == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.Parts)
}

// ContentPart is one element of array-form message content. The base64
// keys are all spellings observed from real clients.
type ContentPart struct {
	Type        string        `json:"type,omitempty"`
	Text        string        `json:"text,omitempty"`
	ImageURL    *ImageURLPart `json:"image_url,omitempty"`
	URL         string        `json:"url,omitempty"`
	B64JSON     string        `json:"b64_json,omitempty"`
	Base64      string        `json:"base64,omitempty"`
	ImageBase64 string        `json:"image_base64,omitempty"`
	ImageBytes  string        `json:"image_bytes,omitempty"`
}

// textTypes and imageTypes map the type tags clients use for each role of
// part. An empty tag falls back to which fields are populated.
var (
	textTypes  = map[string]bool{"text": true, "input_text": true}
	imageTypes = map[string]bool{"image_url": true, "input_image": true, "image": true}
)

// TextValue returns the part's text when it is a text part.
func (p *ContentPart) TextValue() (string, bool) {
	if textTypes[p.Type] || (p.Type == "" && p.Text != "") {
		return p.Text, true
	}
	return "", false
}

// IsImage reports whether the part carries an image in any of its forms.
func (p *ContentPart) IsImage() bool {
	if imageTypes[p.Type] {
		return true
	}
	if p.Type != "" {
		return false
	}
	return p.ImageURL != nil || p.URL != "" || p.B64JSON != "" ||
		p.Base64 != "" || p.ImageBase64 != "" || p.ImageBytes != ""
}

// ImageValue returns the raw image reference with url-flavored keys
// taking precedence over the base64 keys.
func (p *ContentPart) ImageValue() (string, bool) {
	if !p.IsImage() {
		return "", false
	}
	if p.ImageURL != nil && p.ImageURL.URL != "" {
		return p.ImageURL.URL, true
	}
	for _, v := range []string{p.URL, p.B64JSON, p.Base64, p.ImageBase64, p.ImageBytes} {
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// ImageURLPart is the image_url field, which clients send either as a
// bare string or as {"url": ...}.
type ImageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

func (p *ImageURLPart) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		p.Detail = ""
		return json.Unmarshal(data, &p.URL)
	}
	type plain ImageURLPart
	return json.Unmarshal(data, (*plain)(p))
}
