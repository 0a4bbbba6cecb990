// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package generation

import (
	"strings"

	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
)

// ParsedMessages is the normalized form of a chat conversation: the
// effective prompt plus every image contribution in order of appearance.
type ParsedMessages struct {
	Text   string
	Images []imageinput.Input
}

// HasImages reports whether any message carried an image.
func (p ParsedMessages) HasImages() bool { return len(p.Images) > 0 }

// ParseMessages normalizes the heterogeneous message shapes. The prompt is
// the last non-empty text in the conversation; images accumulate across all
// messages in order.
func ParseMessages(messages []openai.ChatMessage) ParsedMessages {
	var parsed ParsedMessages
	for _, m := range messages {
		text, images := parseContent(m.Content)
		parsed.Images = append(parsed.Images, images...)
		if text != "" {
			parsed.Text = text
		}
	}
	return parsed
}

func parseContent(content openai.MessageContent) (string, []imageinput.Input) {
	if content.IsText {
		return strings.TrimSpace(content.Text), nil
	}
	var (
		texts  []string
		images []imageinput.Input
	)
	for i := range content.Parts {
		part := &content.Parts[i]
		if t, ok := part.TextValue(); ok && strings.TrimSpace(t) != "" {
			texts = append(texts, strings.TrimSpace(t))
		}
		if in, ok := partImage(part); ok {
			images = append(images, in)
		}
	}
	return strings.Join(texts, "\n"), images
}

// partImage classifies one part's image reference. Values from the
// explicit base64 keys skip URL detection entirely; url-flavored keys go
// through full detection so data-URIs still land on base64.
func partImage(part *openai.ContentPart) (imageinput.Input, bool) {
	if !part.IsImage() {
		return imageinput.Input{}, false
	}
	for _, v := range []string{part.B64JSON, part.Base64, part.ImageBase64, part.ImageBytes} {
		if v == "" {
			continue
		}
		if b64, ok := strings.CutPrefix(v, "data:"); ok {
			if _, payload, found := strings.Cut(b64, "base64,"); found {
				return imageinput.Base64(payload), true
			}
		}
		return imageinput.Base64(v), true
	}
	if part.ImageURL != nil && part.ImageURL.URL != "" {
		return imageinput.Detect(part.ImageURL.URL), true
	}
	if part.URL != "" {
		return imageinput.Detect(part.URL), true
	}
	return imageinput.Input{}, false
}

// Serialize renders the parsed form back into a single user message, used
// to verify the parse is idempotent.
func (p ParsedMessages) Serialize() []openai.ChatMessage {
	parts := make([]openai.ContentPart, 0, len(p.Images)+1)
	if p.Text != "" {
		parts = append(parts, openai.ContentPart{Type: "text", Text: p.Text})
	}
	for _, img := range p.Images {
		switch img.Kind() {
		case imageinput.KindBase64:
			parts = append(parts, openai.ContentPart{Type: "image_url", Base64: img.String()})
		default:
			parts = append(parts, openai.ContentPart{Type: "image_url", ImageURL: &openai.ImageURLPart{URL: img.String()}})
		}
	}
	return []openai.ChatMessage{{Role: "user", Content: openai.MessageContent{Parts: parts}}}
}
