// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package apierror defines the stable error taxonomy surfaced to clients.
// Every failure in the generation pipeline is wrapped with exactly one
// Kind; transports and handlers map kinds to HTTP status codes.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. The set is stable: clients may switch on it.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindProvisioning   Kind = "provisioning"
	KindUploadToken    Kind = "upload-token"
	KindUploadApply    Kind = "upload-apply"
	KindUploadPut      Kind = "upload-put"
	KindUploadCommit   Kind = "upload-commit"
	KindDraftSubmit    Kind = "draft-submit"
	KindPollTimeout    Kind = "poll-timeout"
	KindPollStall      Kind = "poll-stall"
	KindPollRemote     Kind = "poll-remote-failed"
	KindTransport      Kind = "transport"
	KindServer         Kind = "server"
	KindPoolExhausted  Kind = "pool-exhausted"
)

// Error carries a Kind alongside the wrapped cause. The Message is what the
// client sees; the upstream's raw message is preferred when available.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates an Error without an underlying cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause. If err is already an *Error,
// its kind is preserved and the message is kept.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind from an arbitrary error chain, defaulting to
// server for anything unclassified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindServer
}

// HTTPStatus maps a kind to the status code of the client-facing response.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindPoolExhausted:
		return http.StatusTooManyRequests
	case KindProvisioning:
		return http.StatusServiceUnavailable
	case KindPollTimeout, KindPollStall:
		return http.StatusGatewayTimeout
	case KindTransport, KindServer, KindUploadToken, KindUploadApply,
		KindUploadPut, KindUploadCommit, KindDraftSubmit, KindPollRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
