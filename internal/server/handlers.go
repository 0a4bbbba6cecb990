// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/draft"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
)

// maxMultipartMemory bounds in-memory multipart buffering; larger files
// spill to disk.
const maxMultipartMemory = 32 << 20

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}

func (s *Server) listModels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, modelList())
}

// modelList is the union of every model name across the regional tables.
func modelList() openai.ModelList {
	seen := map[string]bool{}
	for _, table := range []interface{ Names() []string }{
		draft.DomesticImage(), draft.InternationalImage(false),
		draft.DomesticVideo(), draft.InternationalVideo(false),
	} {
		for _, name := range table.Names() {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	list := openai.ModelList{Object: "list", Data: make([]openai.Model, 0, len(names))}
	for _, name := range names {
		list.Data = append(list.Data, openai.Model{ID: name, Object: "model", OwnedBy: "jimeng"})
	}
	return list
}

func (s *Server) imageGenerations(w http.ResponseWriter, r *http.Request) {
	var req openai.ImageGenerationRequest
	if !s.decode(w, r, &req) {
		return
	}
	urls, err := s.gen.GenerateImages(r.Context(), requestPool(r), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeImages(r.Context(), w, urls, req.ResponseFormat)
}

func (s *Server) imageCompositions(w http.ResponseWriter, r *http.Request) {
	var req openai.ImageCompositionRequest
	if isMultipart(r) {
		parsed, err := s.parseCompositionForm(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req = *parsed
	} else if !s.decode(w, r, &req) {
		return
	}
	urls, err := s.gen.GenerateImageComposition(r.Context(), requestPool(r), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeImages(r.Context(), w, urls, req.ResponseFormat)
}

func (s *Server) videoGenerations(w http.ResponseWriter, r *http.Request) {
	var req openai.VideoGenerationRequest
	if isMultipart(r) {
		parsed, err := s.parseVideoForm(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req = *parsed
	} else if !s.decode(w, r, &req) {
		return
	}
	url, err := s.gen.GenerateVideo(r.Context(), requestPool(r), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, openai.VideoResponse{Created: time.Now().Unix(), URL: url})
}

func (s *Server) generateSession(w http.ResponseWriter, r *http.Request) {
	token, err := s.gen.GenerateSession(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, openai.SessionResponse{
		SessionID: token,
		Message:   "session generated",
		Timestamp: time.Now().Unix(),
	})
}

// writeImages renders the image response, inlining artifact bytes when the
// client asked for b64_json.
func (s *Server) writeImages(ctx context.Context, w http.ResponseWriter, urls []string, format string) {
	resp := openai.ImagesResponse{Created: time.Now().Unix(), Data: make([]openai.ImageData, 0, len(urls))}
	if format != "b64_json" {
		for _, u := range urls {
			resp.Data = append(resp.Data, openai.ImageData{URL: u})
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	for _, u := range urls {
		raw, err := s.gen.Resolver().Resolve(ctx, imageinput.URL(u))
		if err != nil {
			s.writeError(w, apierror.Wrap(apierror.KindTransport, err, "cannot fetch artifact for b64_json"))
			return
		}
		resp.Data = append(resp.Data, openai.ImageData{B64JSON: base64.StdEncoding.EncodeToString(raw)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func isMultipart(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && ct == "multipart/form-data"
}

// parseCompositionForm accepts reference images both as uploaded files and
// as string form values, files first.
func (s *Server) parseCompositionForm(r *http.Request) (*openai.ImageCompositionRequest, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "cannot parse multipart form")
	}
	req := &openai.ImageCompositionRequest{
		Model:          r.FormValue("model"),
		Prompt:         r.FormValue("prompt"),
		NegativePrompt: r.FormValue("negative_prompt"),
		Ratio:          r.FormValue("ratio"),
		Resolution:     r.FormValue("resolution"),
		ResponseFormat: r.FormValue("response_format"),
	}
	if raw := r.FormValue("sample_strength"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindValidation, err, "invalid sample_strength")
		}
		req.SampleStrength = &v
	}
	for _, header := range r.MultipartForm.File["images"] {
		b64, err := readFilePart(header)
		if err != nil {
			return nil, err
		}
		req.Images = append(req.Images, b64)
	}
	req.Images = append(req.Images, r.MultipartForm.Value["images"]...)
	return req, nil
}

func (s *Server) parseVideoForm(r *http.Request) (*openai.VideoGenerationRequest, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "cannot parse multipart form")
	}
	req := &openai.VideoGenerationRequest{
		Model:  r.FormValue("model"),
		Prompt: r.FormValue("prompt"),
		Ratio:  r.FormValue("ratio"),
	}
	if raw := r.FormValue("duration"); raw != "" {
		quoted, err := json.Marshal(raw)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindValidation, err, "invalid duration")
		}
		req.Duration = quoted
	}
	// Both spellings of the frame field are accepted, like the JSON path.
	for _, key := range []string{"file_paths", "filePaths"} {
		for _, header := range r.MultipartForm.File[key] {
			b64, err := readFilePart(header)
			if err != nil {
				return nil, err
			}
			req.FilePaths = append(req.FilePaths, b64)
		}
		req.FilePaths = append(req.FilePaths, r.MultipartForm.Value[key]...)
	}
	return req, nil
}

// readFilePart reads one uploaded file into a data-URI so the downstream
// input detection treats it as inline bytes.
func readFilePart(header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", apierror.Wrap(apierror.KindValidation, err, "cannot open uploaded file %s", header.Filename)
	}
	defer func() { _ = f.Close() }()
	raw, err := io.ReadAll(f)
	if err != nil {
		return "", apierror.Wrap(apierror.KindValidation, err, "cannot read uploaded file %s", header.Filename)
	}
	ct := header.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "image/") {
		ct = "image/png"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
