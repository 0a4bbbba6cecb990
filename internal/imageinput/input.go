// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package imageinput normalizes the polymorphic image inputs accepted by
// the public API into raw bytes. Classification is pure; only Resolve
// performs I/O.
package imageinput

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Kind discriminates the Input sum type.
type Kind int

const (
	KindURL Kind = iota
	KindPath
	KindBase64
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindPath:
		return "path"
	case KindBase64:
		return "base64"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Input is one image input in exactly one of its four source forms.
type Input struct {
	kind Kind
	str  string
	raw  []byte
}

func URL(s string) Input    { return Input{kind: KindURL, str: s} }
func Path(s string) Input   { return Input{kind: KindPath, str: s} }
func Base64(s string) Input { return Input{kind: KindBase64, str: s} }
func Bytes(b []byte) Input  { return Input{kind: KindBytes, raw: b} }

func (in Input) Kind() Kind     { return in.kind }
func (in Input) String() string { return in.str }

// Raw returns the payload of a KindBytes input.
func (in Input) Raw() []byte { return in.raw }

// Detect classifies a string input. Data-URIs win over the bare base64
// heuristic, which in turn wins over path interpretation.
func Detect(s string) Input {
	if IsURL(s) {
		return URL(s)
	}
	if payload, ok := strings.CutPrefix(s, "data:"); ok {
		if _, b64, found := strings.Cut(payload, "base64,"); found {
			return Base64(b64)
		}
	}
	if looksLikeBase64(s) {
		return Base64(s)
	}
	return Path(s)
}

// IsURL reports whether s is a remote reference: http(s) or scheme-relative.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "//")
}

// looksLikeBase64 accepts only strings that decode strictly and are long
// enough not to collide with short relative paths.
func looksLikeBase64(s string) bool {
	if len(s) < 32 || len(s)%4 != 0 {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// Resolver turns an Input into bytes. URLs are fetched once; paths are read
// from the local filesystem; base64 is decoded; raw bytes pass through.
type Resolver struct {
	// HTTPClient fetches remote URLs. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// MaxFetchBytes bounds a single remote fetch. Zero means 50 MiB.
	MaxFetchBytes int64
}

const defaultMaxFetchBytes = 50 << 20

// Resolve returns the raw bytes for in.
func (r *Resolver) Resolve(ctx context.Context, in Input) ([]byte, error) {
	switch in.kind {
	case KindBytes:
		return in.raw, nil
	case KindBase64:
		b, err := base64.StdEncoding.DecodeString(in.str)
		if err != nil {
			return nil, fmt.Errorf("cannot decode base64 image: %w", err)
		}
		return b, nil
	case KindPath:
		path, err := CanonicalPath(in.str)
		if err != nil {
			return nil, err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read image file: %w", err)
		}
		return b, nil
	case KindURL:
		return r.fetch(ctx, in.str)
	default:
		return nil, fmt.Errorf("unknown image input kind %d", in.kind)
	}
}

// CanonicalPath resolves the accepted local path forms (file://, ~,
// relative) to an absolute path.
func CanonicalPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "file://")
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand ~: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", p, err)
	}
	return abs, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot build image fetch request: %w", err)
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	limit := r.MaxFetchBytes
	if limit == 0 {
		limit = defaultMaxFetchBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("cannot read image body: %w", err)
	}
	return b, nil
}
