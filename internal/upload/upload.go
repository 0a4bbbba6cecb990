// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package upload implements the authenticated three-phase object-store
// upload: issue token, ApplyImageUpload, direct PUT, CommitImageUpload.
// Each phase fails hard; there are no phase-level retries.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/jimeng"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
	"github.com/jimengapi/jimeng-gateway/internal/region"
	"github.com/jimengapi/jimeng-gateway/internal/signer"
)

const applyVersion = "2018-08-01"

// TokenIssuer mints the transient credential set for one upload. The
// generation client implements this against get_upload_token.
type TokenIssuer interface {
	IssueUploadToken(ctx context.Context) (*jimeng.UploadToken, error)
}

// Client uploads in-memory blobs and returns the upstream's opaque URIs.
type Client struct {
	HTTPClient *http.Client
	Signer     *signer.Signer
	Logger     *slog.Logger
	Resolver   *imageinput.Resolver
}

// UploadAll uploads inputs strictly in order. Ordering matters: the draft's
// ability_list is positional, so uploads within one generation call are
// never concurrent.
func (c *Client) UploadAll(ctx context.Context, info region.Info, issuer TokenIssuer, inputs []imageinput.Input) ([]string, error) {
	uris := make([]string, 0, len(inputs))
	for i, in := range inputs {
		uri, err := c.Upload(ctx, info, issuer, in)
		if err != nil {
			return nil, fmt.Errorf("upload %d/%d: %w", i+1, len(inputs), err)
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

// Upload runs the full state machine for one input and returns the
// committed URI.
func (c *Client) Upload(ctx context.Context, info region.Info, issuer TokenIssuer, in imageinput.Input) (string, error) {
	data, err := c.Resolver.Resolve(ctx, in)
	if err != nil {
		return "", apierror.Wrap(apierror.KindValidation, err, "cannot normalize %s image input", in.Kind())
	}
	if len(data) == 0 {
		return "", apierror.New(apierror.KindValidation, "image input is empty")
	}

	token, err := issuer.IssueUploadToken(ctx)
	if err != nil {
		return "", apierror.Wrap(apierror.KindUploadToken, err, "cannot issue upload token")
	}
	if token.AccessKeyID == "" || token.SecretAccessKey == "" || token.SessionToken == "" {
		return "", apierror.New(apierror.KindUploadToken, "upload token response is missing credentials")
	}
	serviceID := token.ServiceID
	if info.International && token.SpaceName != "" {
		serviceID = token.SpaceName
	}
	if serviceID == "" {
		return "", apierror.New(apierror.KindUploadToken, "upload token response carries no service id")
	}
	creds := signer.Credentials{
		AccessKeyID:     token.AccessKeyID,
		SecretAccessKey: token.SecretAccessKey,
		SessionToken:    token.SessionToken,
	}

	addr, err := c.apply(ctx, info, creds, serviceID, len(data))
	if err != nil {
		return "", err
	}
	if err := c.put(ctx, addr, data); err != nil {
		return "", err
	}
	uri, err := c.commit(ctx, info, creds, serviceID, addr.SessionKey)
	if err != nil {
		return "", err
	}
	c.Logger.Debug("image uploaded", "uri", uri, "bytes", len(data))
	return uri, nil
}

// apply reserves a store slot via the signed ApplyImageUpload call.
func (c *Client) apply(ctx context.Context, info region.Info, creds signer.Credentials, serviceID string, size int) (*jimeng.UploadAddress, error) {
	q := url.Values{}
	q.Set("Action", "ApplyImageUpload")
	q.Set("Version", applyVersion)
	q.Set("ServiceId", serviceID)
	q.Set("FileSize", strconv.Itoa(size))
	q.Set("s", randomString(10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.ImagexHost+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindUploadApply, err, "cannot build apply request")
	}
	if err := c.Signer.Sign(ctx, req, nil, creds, info.AWSRegion); err != nil {
		return nil, apierror.Wrap(apierror.KindUploadApply, err, "cannot sign apply request")
	}

	body, err := c.do(req, apierror.KindUploadApply)
	if err != nil {
		return nil, err
	}
	if msg := imagexError(body); msg != "" {
		return nil, apierror.New(apierror.KindUploadApply, "%s", msg)
	}
	var resp jimeng.ApplyImageUploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierror.Wrap(apierror.KindUploadApply, err, "cannot decode apply response")
	}
	addr := resp.Result.UploadAddress
	if len(addr.StoreInfos) == 0 || len(addr.UploadHosts) == 0 || addr.SessionKey == "" {
		return nil, apierror.New(apierror.KindUploadApply, "apply response carries no upload address")
	}
	return &addr, nil
}

// put streams the exact blob to the store host. The Content-CRC32 header is
// computed over the same bytes placed in the body.
func (c *Client) put(ctx context.Context, addr *jimeng.UploadAddress, data []byte) error {
	store := addr.StoreInfos[0]
	host := addr.UploadHosts[0]
	// Hosts normally arrive bare; a scheme is kept as-is.
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	uploadURL := host + "/upload/v1/" + store.StoreURI
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return apierror.Wrap(apierror.KindUploadPut, err, "cannot build store request")
	}
	req.Header.Set("Authorization", store.Auth)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-CRC32", fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apierror.Wrap(apierror.KindUploadPut, err, "store request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierror.New(apierror.KindUploadPut, "store returned status %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// commit finalizes the upload. The signed payload is the exact JSON body.
func (c *Client) commit(ctx context.Context, info region.Info, creds signer.Credentials, serviceID, sessionKey string) (string, error) {
	q := url.Values{}
	q.Set("Action", "CommitImageUpload")
	q.Set("Version", applyVersion)
	q.Set("ServiceId", serviceID)

	payload, err := json.Marshal(map[string]string{"SessionKey": sessionKey})
	if err != nil {
		return "", apierror.Wrap(apierror.KindUploadCommit, err, "cannot encode commit body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, info.ImagexHost+"/?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return "", apierror.Wrap(apierror.KindUploadCommit, err, "cannot build commit request")
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.Signer.Sign(ctx, req, payload, creds, info.AWSRegion); err != nil {
		return "", apierror.Wrap(apierror.KindUploadCommit, err, "cannot sign commit request")
	}

	body, err := c.do(req, apierror.KindUploadCommit)
	if err != nil {
		return "", err
	}
	if msg := imagexError(body); msg != "" {
		return "", apierror.New(apierror.KindUploadCommit, "%s", msg)
	}
	var resp jimeng.CommitImageUploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apierror.Wrap(apierror.KindUploadCommit, err, "cannot decode commit response")
	}
	if len(resp.Result.Results) == 0 {
		return "", apierror.New(apierror.KindUploadCommit, "commit response carries no results")
	}
	res := resp.Result.Results[0]
	if res.URIStatus != jimeng.URIStatusOK {
		return "", apierror.New(apierror.KindUploadCommit, "commit returned UriStatus %d", res.URIStatus)
	}
	if res.URI == "" {
		return "", apierror.New(apierror.KindUploadCommit, "commit returned an empty uri")
	}
	return res.URI, nil
}

func (c *Client) do(req *http.Request, kind apierror.Kind) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apierror.Wrap(kind, err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Wrap(kind, err, "cannot read response")
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apierror.New(apierror.KindAuth, "imagex returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierror.New(kind, "imagex returned status %d", resp.StatusCode)
	}
	return body, nil
}

// imagexError extracts the ResponseMetadata.Error message, tolerating
// payloads that are not fully well-formed.
func imagexError(body []byte) string {
	e := gjson.GetBytes(body, "ResponseMetadata.Error")
	if !e.Exists() {
		return ""
	}
	if msg := e.Get("Message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return "imagex error " + e.Get("Code").String()
}

const alnum = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alnum[rand.IntN(len(alnum))]
	}
	return string(b)
}
