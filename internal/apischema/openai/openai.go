// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package openai holds the OpenAI-compatible request and response shapes
// served on the public listener. The types are hand-written rather than
// generated so the unions and lenient fields match what real clients send.
package openai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ImageGenerationRequest is the body of POST /v1/images/generations.
//
// Size, Width and Height are pointers so their mere presence can be
// rejected: sizing is expressed through Ratio and Resolution only.
type ImageGenerationRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Ratio          string   `json:"ratio,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	SampleStrength *float64 `json:"sample_strength,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Size           *string  `json:"size,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
}

// ImageCompositionRequest is the body of POST /v1/images/compositions.
// Each entry of Images may be a URL, a local path, a data-URI or bare
// base64.
type ImageCompositionRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Images         []string `json:"images"`
	Ratio          string   `json:"ratio,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	SampleStrength *float64 `json:"sample_strength,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Size           *string  `json:"size,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
}

// VideoGenerationRequest is the body of POST /v1/videos/generations.
type VideoGenerationRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio,omitempty"`
	// Duration is kept raw because clients send both 5 and "5".
	Duration json.RawMessage `json:"duration,omitempty"`
	// FilePaths holds the optional first and last frame references.
	// FilePathsAlt absorbs the camelCase spelling some clients use.
	FilePaths    []string `json:"file_paths,omitempty"`
	FilePathsAlt []string `json:"filePaths,omitempty"`
}

// DurationSeconds returns the requested duration. set is false when the
// field was absent. A string value must be a bare integer.
func (r *VideoGenerationRequest) DurationSeconds() (seconds int, set bool, err error) {
	if len(r.Duration) == 0 {
		return 0, false, nil
	}
	var n int
	if err = json.Unmarshal(r.Duration, &n); err == nil {
		return n, true, nil
	}
	var s string
	if err = json.Unmarshal(r.Duration, &s); err != nil {
		return 0, false, fmt.Errorf("duration must be a number or a numeric string")
	}
	n, err = strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("duration string %q is not an integer", s)
	}
	return n, true, nil
}

// AllFilePaths merges both accepted spellings, snake_case first.
func (r *VideoGenerationRequest) AllFilePaths() []string {
	if len(r.FilePathsAlt) == 0 {
		return r.FilePaths
	}
	out := make([]string, 0, len(r.FilePaths)+len(r.FilePathsAlt))
	out = append(out, r.FilePaths...)
	out = append(out, r.FilePathsAlt...)
	return out
}

// ImageData is one generated image in an ImagesResponse.
type ImageData struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// ImagesResponse is the body returned by the image endpoints.
type ImagesResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

// VideoResponse is the body returned by the video endpoint.
type VideoResponse struct {
	Created int64  `json:"created"`
	URL     string `json:"url"`
}

// SessionResponse is the body returned by POST /v1/session/generate.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ChatMessage is one conversation entry. Content accepts all the shapes
// clients send; see MessageContent.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatResultMessage is a complete assistant message or a streamed delta.
type ChatResultMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatCompletionChoice carries Message on chat.completion objects and
// Delta on chat.completion.chunk objects.
type ChatCompletionChoice struct {
	Index        int                `json:"index"`
	Message      *ChatResultMessage `json:"message,omitempty"`
	Delta        *ChatResultMessage `json:"delta,omitempty"`
	FinishReason *string            `json:"finish_reason"`
}

// ChatCompletionResponse is both the chat.completion object and, with
// Delta populated instead of Message, the chat.completion.chunk object.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
}

// Model is one entry of GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Error is the OpenAI error shape.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse wraps Error the way the OpenAI API does.
type ErrorResponse struct {
	Error Error `json:"error"`
}
