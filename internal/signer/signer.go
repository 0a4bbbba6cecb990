// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package signer produces AWS signature v4 Authorization headers for the
// object-store (imagex) API. Credentials are the short-lived set minted by
// the upload token phase, never long-lived account keys.
package signer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// imagex is the service name in the sigv4 credential scope:
// {date}/{region}/imagex/aws4_request.
const service = "imagex"

// Credentials is the transient credential set from get_upload_token. It
// lives for a single upload and is never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Signer signs imagex requests. The zero value is not usable; use New.
type Signer struct {
	v4  *v4.Signer
	now func() time.Time
}

// New returns a Signer stamping requests with the current time.
func New() *Signer {
	return &Signer{v4: v4.NewSigner(), now: time.Now}
}

// NewWithClock returns a Signer with a fixed clock, for tests.
func NewWithClock(now func() time.Time) *Signer {
	return &Signer{v4: v4.NewSigner(), now: now}
}

// PayloadHash returns the lowercase hex sha256 of payload. A nil payload
// hashes as the empty string, which is what GET requests must send.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Sign signs req in place for the given region, adding Authorization,
// X-Amz-Date, X-Amz-Content-Sha256 and, when a session token is present,
// X-Amz-Security-Token to the signed header set.
func (s *Signer) Sign(ctx context.Context, req *http.Request, payload []byte, creds Credentials, awsRegion string) error {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return fmt.Errorf("cannot sign request: incomplete credentials")
	}
	// The upstream verifies the payload hash from the header, so it must be
	// present and covered by SignedHeaders, not just folded into the string
	// to sign.
	hash := PayloadHash(payload)
	req.Header.Set("X-Amz-Content-Sha256", hash)
	err := s.v4.SignHTTP(ctx, aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, req, hash, service, awsRegion, s.now())
	if err != nil {
		return fmt.Errorf("cannot sign request: %w", err)
	}
	return nil
}
