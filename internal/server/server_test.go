// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/generation"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
	"github.com/jimengapi/jimeng-gateway/internal/tokenpool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGenerator records the last call and plays back canned results.
type fakeGenerator struct {
	images   []string
	videoURL string
	session  string
	err      error
	resolver *imageinput.Resolver

	lastPool     *tokenpool.Pool
	lastImageReq *openai.ImageGenerationRequest
	lastCompReq  *openai.ImageCompositionRequest
	lastVideoReq *openai.VideoGenerationRequest
	lastChatReq  *openai.ChatCompletionRequest
}

func (f *fakeGenerator) GenerateImages(_ context.Context, pool *tokenpool.Pool, req *openai.ImageGenerationRequest) ([]string, error) {
	f.lastPool, f.lastImageReq = pool, req
	return f.images, f.err
}

func (f *fakeGenerator) GenerateImageComposition(_ context.Context, pool *tokenpool.Pool, req *openai.ImageCompositionRequest) ([]string, error) {
	f.lastPool, f.lastCompReq = pool, req
	return f.images, f.err
}

func (f *fakeGenerator) GenerateVideo(_ context.Context, pool *tokenpool.Pool, req *openai.VideoGenerationRequest) (string, error) {
	f.lastPool, f.lastVideoReq = pool, req
	return f.videoURL, f.err
}

func (f *fakeGenerator) GenerateSession(context.Context) (string, error) {
	return f.session, f.err
}

func (f *fakeGenerator) ChatCompletion(_ context.Context, pool *tokenpool.Pool, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	f.lastPool, f.lastChatReq = pool, req
	if f.err != nil {
		return nil, f.err
	}
	stop := "stop"
	return &openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message:      &openai.ChatResultMessage{Role: "assistant", Content: "done"},
			FinishReason: &stop,
		}},
	}, nil
}

func (f *fakeGenerator) ChatCompletionStream(_ context.Context, pool *tokenpool.Pool, req *openai.ChatCompletionRequest, onChunk func(*generation.ChatChunk) error) error {
	f.lastPool, f.lastChatReq = pool, req
	if f.err != nil {
		return f.err
	}
	stop := "stop"
	for _, chunk := range []*generation.ChatChunk{
		{Object: "chat.completion.chunk", Choices: []openai.ChatCompletionChoice{{Delta: &openai.ChatResultMessage{Role: "assistant"}}}},
		{Object: "chat.completion.chunk", Choices: []openai.ChatCompletionChoice{{Delta: &openai.ChatResultMessage{Content: "![image_1](u)"}}}},
		{Object: "chat.completion.chunk", Choices: []openai.ChatCompletionChoice{{FinishReason: &stop}}},
	} {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeGenerator) Resolver() *imageinput.Resolver {
	if f.resolver == nil {
		return &imageinput.Resolver{}
	}
	return f.resolver
}

func newTestServer(t *testing.T, gen *fakeGenerator) *httptest.Server {
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), gen)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, headers map[string]string, body any) *http.Response {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPing(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})
	resp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pong", string(body))
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})
	resp, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list openai.ModelList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, "list", list.Object)
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		require.Equal(t, "model", m.Object)
		ids = append(ids, m.ID)
	}
	require.Contains(t, ids, "jimeng-4.0")
	require.Contains(t, ids, "nanobanana")
	require.Contains(t, ids, "jimeng-video-3.0")
	require.IsIncreasing(t, ids)
}

func TestImageGenerations(t *testing.T) {
	gen := &fakeGenerator{images: []string{"https://cdn.example.test/1.webp", "https://cdn.example.test/2.webp"}}
	srv := newTestServer(t, gen)

	resp := postJSON(t, srv.URL+"/v1/images/generations",
		map[string]string{"Authorization": "Bearer tok-1,tok-2"},
		map[string]any{"model": "jimeng-4.0", "prompt": "a fox"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out openai.ImagesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Data, 2)
	require.Equal(t, "https://cdn.example.test/1.webp", out.Data[0].URL)
	require.Empty(t, out.Data[0].B64JSON)

	require.Equal(t, "a fox", gen.lastImageReq.Prompt)
	require.Equal(t, 2, gen.lastPool.Size())
}

func TestImageGenerationsNoAuthFallsBack(t *testing.T) {
	gen := &fakeGenerator{images: []string{"u"}}
	srv := newTestServer(t, gen)

	resp := postJSON(t, srv.URL+"/v1/images/generations", nil, map[string]any{"prompt": "p"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, gen.lastPool)
}

func TestErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		kind   apierror.Kind
		status int
	}{
		{apierror.KindValidation, http.StatusBadRequest},
		{apierror.KindAuth, http.StatusUnauthorized},
		{apierror.KindPoolExhausted, http.StatusTooManyRequests},
		{apierror.KindPollTimeout, http.StatusGatewayTimeout},
		{apierror.KindDraftSubmit, http.StatusBadGateway},
	} {
		t.Run(string(tc.kind), func(t *testing.T) {
			gen := &fakeGenerator{err: apierror.New(tc.kind, "boom")}
			srv := newTestServer(t, gen)

			resp := postJSON(t, srv.URL+"/v1/images/generations", nil, map[string]any{"prompt": "p"})
			require.Equal(t, tc.status, resp.StatusCode)

			var out openai.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			require.Equal(t, string(tc.kind), out.Error.Type)
			require.Equal(t, "boom", out.Error.Message)
		})
	}
}

func TestImageGenerationsB64JSON(t *testing.T) {
	artifact := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(artifact)
	}))
	t.Cleanup(cdn.Close)

	gen := &fakeGenerator{
		images:   []string{cdn.URL + "/artifact.png"},
		resolver: &imageinput.Resolver{HTTPClient: cdn.Client()},
	}
	srv := newTestServer(t, gen)

	resp := postJSON(t, srv.URL+"/v1/images/generations", nil,
		map[string]any{"prompt": "p", "response_format": "b64_json"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out openai.ImagesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Data, 1)
	require.Empty(t, out.Data[0].URL)
	require.Equal(t, base64.StdEncoding.EncodeToString(artifact), out.Data[0].B64JSON)
}

func TestImageCompositionsMultipart(t *testing.T) {
	gen := &fakeGenerator{images: []string{"u"}}
	srv := newTestServer(t, gen)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("prompt", "merge"))
	require.NoError(t, form.WriteField("model", "jimeng-3.0"))
	require.NoError(t, form.WriteField("sample_strength", "0.7"))
	require.NoError(t, form.WriteField("images", "https://example.test/ref.png"))
	part, err := form.CreateFormFile("images", "a.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/v1/images/compositions", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, "merge", gen.lastCompReq.Prompt)
	require.NotNil(t, gen.lastCompReq.SampleStrength)
	require.Equal(t, 0.7, *gen.lastCompReq.SampleStrength)
	// Uploaded files precede string form values.
	require.Len(t, gen.lastCompReq.Images, 2)
	require.True(t, strings.HasPrefix(gen.lastCompReq.Images[0], "data:"))
	require.Equal(t, "https://example.test/ref.png", gen.lastCompReq.Images[1])
}

func TestVideoGenerations(t *testing.T) {
	gen := &fakeGenerator{videoURL: "https://cdn.example.test/v.mp4"}
	srv := newTestServer(t, gen)

	resp := postJSON(t, srv.URL+"/v1/videos/generations", nil,
		map[string]any{"prompt": "dunes", "duration": "8"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out openai.VideoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "https://cdn.example.test/v.mp4", out.URL)

	seconds, set, err := gen.lastVideoReq.DurationSeconds()
	require.NoError(t, err)
	require.True(t, set)
	require.Equal(t, 8, seconds)
}

func TestVideoGenerationsMultipart(t *testing.T) {
	gen := &fakeGenerator{videoURL: "u"}
	srv := newTestServer(t, gen)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("prompt", "dunes"))
	require.NoError(t, form.WriteField("duration", "6"))
	part, err := form.CreateFormFile("file_paths", "first.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("frame bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/v1/videos/generations", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	seconds, set, err := gen.lastVideoReq.DurationSeconds()
	require.NoError(t, err)
	require.True(t, set)
	require.Equal(t, 6, seconds)
	require.Len(t, gen.lastVideoReq.FilePaths, 1)
	require.True(t, strings.HasPrefix(gen.lastVideoReq.FilePaths[0], "data:"))
}

func TestVideoGenerationsMultipartCamelCaseFrames(t *testing.T) {
	gen := &fakeGenerator{videoURL: "u"}
	srv := newTestServer(t, gen)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("prompt", "dunes"))
	part, err := form.CreateFormFile("filePaths", "first.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("frame bytes"))
	require.NoError(t, err)
	require.NoError(t, form.WriteField("filePaths", "https://cdn.example/last.png"))
	require.NoError(t, form.Close())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/v1/videos/generations", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, gen.lastVideoReq.FilePaths, 2)
	require.True(t, strings.HasPrefix(gen.lastVideoReq.FilePaths[0], "data:"))
	require.Equal(t, "https://cdn.example/last.png", gen.lastVideoReq.FilePaths[1])
}

func TestSessionGenerate(t *testing.T) {
	gen := &fakeGenerator{session: "fresh-session"}
	srv := newTestServer(t, gen)

	before := time.Now().Unix()
	resp := postJSON(t, srv.URL+"/v1/session/generate", nil, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out openai.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "fresh-session", out.SessionID)
	require.NotEmpty(t, out.Message)
	require.GreaterOrEqual(t, out.Timestamp, before)

	// The wire keys are camelCase.
	resp = postJSON(t, srv.URL+"/v1/session/generate", nil, map[string]any{})
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Contains(t, string(raw), `"sessionId"`)
	require.Contains(t, string(raw), `"timestamp"`)
}

func TestChatCompletions(t *testing.T) {
	gen := &fakeGenerator{}
	srv := newTestServer(t, gen)

	resp := postJSON(t, srv.URL+"/v1/chat/completions", nil,
		map[string]any{"model": "jimeng-3.0", "messages": []map[string]any{{"role": "user", "content": "p"}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out openai.ChatCompletionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "chat.completion", out.Object)
	require.Equal(t, "done", out.Choices[0].Message.Content)
}

func TestChatCompletionsStream(t *testing.T) {
	gen := &fakeGenerator{}
	srv := newTestServer(t, gen)

	resp := postJSON(t, srv.URL+"/v1/chat/completions", nil,
		map[string]any{"model": "jimeng-3.0", "stream": true,
			"messages": []map[string]any{{"role": "user", "content": "p"}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	events := strings.Split(strings.TrimSpace(string(body)), "\n\n")
	require.Len(t, events, 4)
	for _, ev := range events {
		require.True(t, strings.HasPrefix(ev, "data: "))
	}
	require.Equal(t, "data: [DONE]", events[len(events)-1])

	var first openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[0], "data: ")), &first))
	require.Equal(t, "chat.completion.chunk", first.Object)
	require.Equal(t, "assistant", first.Choices[0].Delta.Role)
}

func TestChatCompletionsStreamErrorBeforeStart(t *testing.T) {
	gen := &fakeGenerator{err: apierror.New(apierror.KindValidation, "no prompt text found in messages")}
	srv := newTestServer(t, gen)

	resp := postJSON(t, srv.URL+"/v1/chat/completions", nil,
		map[string]any{"model": "jimeng-3.0", "stream": true, "messages": []map[string]any{}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out openai.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "validation", out.Error.Type)
}

func TestDecodeFailure(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost,
		srv.URL+"/v1/images/generations", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
