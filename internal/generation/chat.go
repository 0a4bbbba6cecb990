// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
	"github.com/jimengapi/jimeng-gateway/internal/tokenpool"
)

// chatFinishStop is the finish_reason of the closing chunk.
var chatFinishStop = "stop"

// ChatChunk is one streamed delta handed to the caller, already in the
// chat.completion.chunk shape.
type ChatChunk = openai.ChatCompletionResponse

// ChatCompletion drives a generation from a chat conversation and renders
// the artifacts as a markdown message.
func (c *Client) ChatCompletion(ctx context.Context, pool *tokenpool.Pool, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	urls, err := c.chatGenerate(ctx, pool, req)
	if err != nil {
		return nil, err
	}
	return &openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.New().String(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message:      &openai.ChatResultMessage{Role: "assistant", Content: renderMarkdown(urls)},
			FinishReason: &chatFinishStop,
		}},
	}, nil
}

// ChatCompletionStream drives the same generation but emits the result as
// a sequence of deltas through onChunk. The transport layer appends the
// [DONE] sentinel.
func (c *Client) ChatCompletionStream(ctx context.Context, pool *tokenpool.Pool, req *openai.ChatCompletionRequest, onChunk func(*ChatChunk) error) error {
	id := "chatcmpl-" + uuid.New().String()
	created := time.Now().Unix()
	chunk := func(delta *openai.ChatResultMessage, finish *string) *ChatChunk {
		return &ChatChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []openai.ChatCompletionChoice{{Delta: delta, FinishReason: finish}},
		}
	}

	if err := onChunk(chunk(&openai.ChatResultMessage{Role: "assistant"}, nil)); err != nil {
		return err
	}
	urls, err := c.chatGenerate(ctx, pool, req)
	if err != nil {
		return err
	}
	for i, u := range urls {
		delta := &openai.ChatResultMessage{Content: fmt.Sprintf("![image_%d](%s)\n", i+1, u)}
		if err := onChunk(chunk(delta, nil)); err != nil {
			return err
		}
	}
	return onChunk(chunk(&openai.ChatResultMessage{}, &chatFinishStop))
}

// chatGenerate routes a conversation to text-to-image or composition
// depending on whether any message carried an image.
func (c *Client) chatGenerate(ctx context.Context, pool *tokenpool.Pool, req *openai.ChatCompletionRequest) ([]string, error) {
	if len(req.Messages) == 0 {
		return nil, apierror.New(apierror.KindValidation, "messages are required")
	}
	parsed := ParseMessages(req.Messages)
	if parsed.Text == "" {
		return nil, apierror.New(apierror.KindValidation, "no prompt text found in messages")
	}

	if !parsed.HasImages() {
		return c.GenerateImages(ctx, pool, &openai.ImageGenerationRequest{
			Model:  req.Model,
			Prompt: parsed.Text,
		})
	}
	images := make([]string, 0, len(parsed.Images))
	for _, in := range parsed.Images {
		images = append(images, serializeInput(in))
	}
	return c.GenerateImageComposition(ctx, pool, &openai.ImageCompositionRequest{
		Model:  req.Model,
		Prompt: parsed.Text,
		Images: images,
	})
}

// serializeInput renders an input back into the string form the
// composition operation accepts.
func serializeInput(in imageinput.Input) string {
	switch in.Kind() {
	case imageinput.KindBase64:
		return "data:image/png;base64," + in.String()
	case imageinput.KindBytes:
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(in.Raw())
	default:
		return in.String()
	}
}

// renderMarkdown renders artifact URLs as a markdown image list.
func renderMarkdown(urls []string) string {
	var b strings.Builder
	for i, u := range urls {
		fmt.Fprintf(&b, "![image_%d](%s)\n", i+1, u)
	}
	return b.String()
}
