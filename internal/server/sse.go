// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/generation"
)

// sseDone is the terminal sentinel of an OpenAI-compatible stream.
const sseDone = "data: [DONE]\n\n"

func (s *Server) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if !s.decode(w, r, &req) {
		return
	}
	pool := requestPool(r)

	if !req.Stream {
		resp, err := s.gen.ChatCompletion(r.Context(), pool, &req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, apierror.New(apierror.KindServer, "streaming is not supported by this connection"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := false
	err := s.gen.ChatCompletionStream(r.Context(), pool, &req, func(chunk *generation.ChatChunk) error {
		started = true
		return writeSSE(w, flusher, chunk)
	})
	if err != nil {
		if !started {
			// Nothing has been flushed yet, so a proper error response is
			// still possible.
			s.writeError(w, err)
			return
		}
		// Mid-stream there is no way to change the status; surface the error
		// as a final event before closing.
		s.logger.Warn("stream aborted", "err", err)
		kind := apierror.KindOf(err)
		_ = writeSSE(w, flusher, openai.ErrorResponse{
			Error: openai.Error{Type: string(kind), Message: err.Error()},
		})
	}
	_, _ = fmt.Fprint(w, sseDone)
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot encode stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("cannot write stream event: %w", err)
	}
	flusher.Flush()
	return nil
}
