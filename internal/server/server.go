// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package server exposes the OpenAI-compatible HTTP surface. Handlers only
// translate between HTTP and the generation operations; all upstream logic
// lives behind the Generator interface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/generation"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
	"github.com/jimengapi/jimeng-gateway/internal/tokenpool"
)

// Generator is the slice of the generation client the HTTP layer consumes.
type Generator interface {
	GenerateImages(ctx context.Context, pool *tokenpool.Pool, req *openai.ImageGenerationRequest) ([]string, error)
	GenerateImageComposition(ctx context.Context, pool *tokenpool.Pool, req *openai.ImageCompositionRequest) ([]string, error)
	GenerateVideo(ctx context.Context, pool *tokenpool.Pool, req *openai.VideoGenerationRequest) (string, error)
	GenerateSession(ctx context.Context) (string, error)
	ChatCompletion(ctx context.Context, pool *tokenpool.Pool, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
	ChatCompletionStream(ctx context.Context, pool *tokenpool.Pool, req *openai.ChatCompletionRequest, onChunk func(*generation.ChatChunk) error) error
	Resolver() *imageinput.Resolver
}

// Server routes the public API.
type Server struct {
	logger *slog.Logger
	gen    Generator
	mux    *http.ServeMux
}

// New builds the public handler around gen.
func New(logger *slog.Logger, gen Generator) *Server {
	s := &Server{logger: logger, gen: gen, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /ping", s.ping)
	s.mux.HandleFunc("GET /v1/models", s.listModels)
	s.mux.HandleFunc("POST /v1/images/generations", s.imageGenerations)
	s.mux.HandleFunc("POST /v1/images/compositions", s.imageCompositions)
	s.mux.HandleFunc("POST /v1/videos/generations", s.videoGenerations)
	s.mux.HandleFunc("POST /v1/chat/completions", s.chatCompletions)
	s.mux.HandleFunc("POST /v1/session/generate", s.generateSession)
	return s
}

// ServeHTTP tags every request with an id before routing it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-Id", requestID)
	s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "request_id", requestID)
	s.mux.ServeHTTP(w, r)
}

// requestPool extracts the per-request token pool from the Authorization
// header. Absent or empty credentials yield nil so the fallback pool is
// used.
func requestPool(r *http.Request) *tokenpool.Pool {
	auth := r.Header.Get("Authorization")
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if raw == "" {
		return nil
	}
	pool := tokenpool.Parse(raw)
	if pool.Size() == 0 {
		return nil
	}
	return pool
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("cannot write response", "err", err)
	}
}

// writeError renders the stable error shape: the kind becomes the type
// field and selects the status code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apierror.KindOf(err)
	s.logger.Warn("request failed", "kind", string(kind), "err", err)
	message := err.Error()
	var ae *apierror.Error
	if errors.As(err, &ae) {
		message = ae.Message
	}
	s.writeJSON(w, apierror.HTTPStatus(kind), openai.ErrorResponse{
		Error: openai.Error{Type: string(kind), Message: message},
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, apierror.Wrap(apierror.KindValidation, err, "cannot decode request body"))
		return false
	}
	return true
}
