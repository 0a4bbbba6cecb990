// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package generation orchestrates the public operations: one client call
// becomes zero-or-more uploads, one draft submission, and a polling loop
// against the history endpoint.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/jimeng"
	"github.com/jimengapi/jimeng-gateway/internal/draft"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
	"github.com/jimengapi/jimeng-gateway/internal/metrics"
	"github.com/jimengapi/jimeng-gateway/internal/poller"
	"github.com/jimengapi/jimeng-gateway/internal/region"
	"github.com/jimengapi/jimeng-gateway/internal/session"
	"github.com/jimengapi/jimeng-gateway/internal/signer"
	"github.com/jimengapi/jimeng-gateway/internal/tokenpool"
	"github.com/jimengapi/jimeng-gateway/internal/upload"
)

const (
	uploadTokenPath   = "/mweb/v1/get_upload_token"
	draftGeneratePath = "/mweb/v1/aigc_draft/generate"
	historyPath       = "/mweb/v1/get_history_by_ids"
	creditPath        = "/token/points"
	creditReceivePath = "/commerce/v1/benefits/credit_receive"
)

// Options configures a Client.
type Options struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	// Pool is the fallback token pool when a request carries none.
	Pool      *tokenpool.Pool
	FailCodes *apierror.FailCodeTable
	Metrics   *metrics.GenerationMetrics
	Sessions  session.Provider
	// StrictInternationalModels keeps the observed asymmetry: international
	// tables reject unknown models, domestic tables fall back.
	StrictInternationalModels bool
	// OriginOverride and ImagexOverride redirect every regional endpoint,
	// for tests.
	OriginOverride string
	ImagexOverride string
}

// Client is safe for concurrent use; each request owns its own call state.
type Client struct {
	opts     Options
	uploader *upload.Client
	resolver *imageinput.Resolver
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.FailCodes == nil {
		opts.FailCodes = apierror.DefaultFailCodeTable()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.Unavailable{}
	}
	if opts.Pool == nil {
		opts.Pool = tokenpool.Parse("")
	}
	resolver := &imageinput.Resolver{HTTPClient: opts.HTTPClient}
	return &Client{
		opts: opts,
		uploader: &upload.Client{
			HTTPClient: opts.HTTPClient,
			Signer:     signer.New(),
			Logger:     opts.Logger,
			Resolver:   resolver,
		},
		resolver: resolver,
	}
}

// Resolver exposes the shared input resolver, used by the server layer to
// inline artifacts for b64_json responses.
func (c *Client) Resolver() *imageinput.Resolver { return c.resolver }

// call is the per-request state: one token, one region, one logger.
type call struct {
	client *Client
	info   region.Info
	secret string
	logger *slog.Logger
}

// newCall picks one token at random from the request pool (or the fallback
// pool) and resolves its region.
func (c *Client) newCall(pool *tokenpool.Pool, requestID string) (*call, error) {
	if pool == nil || pool.Size() == 0 {
		pool = c.opts.Pool
	}
	token, err := pool.Pick()
	if err != nil {
		return nil, err
	}
	info, secret := region.Resolve(token)
	if c.opts.OriginOverride != "" {
		info.Origin = c.opts.OriginOverride
		info.Referer = c.opts.OriginOverride
	}
	if c.opts.ImagexOverride != "" {
		info.ImagexHost = c.opts.ImagexOverride
	}
	return &call{
		client: c,
		info:   info,
		secret: secret,
		logger: c.opts.Logger.With("request_id", requestID, "region", string(info.Region)),
	}, nil
}

// imageModels returns the model table for the call's backend.
func (cl *call) imageModels() *draft.ModelTable {
	if cl.info.International {
		return draft.InternationalImage(cl.client.opts.StrictInternationalModels)
	}
	return draft.DomesticImage()
}

func (cl *call) videoModels() *draft.ModelTable {
	if cl.info.International {
		return draft.InternationalVideo(cl.client.opts.StrictInternationalModels)
	}
	return draft.DomesticVideo()
}

func (cl *call) aid() int {
	aid, _ := strconv.Atoi(cl.info.AssistantID)
	return aid
}

// mwebURL builds an upstream URL with the common query parameters.
func (cl *call) mwebURL(path string) string {
	q := url.Values{}
	q.Set("aid", cl.info.AssistantID)
	q.Set("device_platform", "web")
	q.Set("region", string(cl.info.Region))
	return cl.info.Origin + path + "?" + q.Encode()
}

// postJSON posts body to an upstream path and returns the envelope data.
// Failure kinds: auth for 401/403, server for other non-2xx, transport for
// network faults, and the caller's kind for envelope-level errors.
func (cl *call) postJSON(ctx context.Context, path string, body []byte, kind apierror.Kind) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.mwebURL(path), bytes.NewReader(body))
	if err != nil {
		return nil, apierror.Wrap(kind, err, "cannot build request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", region.FormatAuth(cl.info, cl.secret))
	req.Header.Set("Origin", cl.info.Origin)
	req.Header.Set("Referer", cl.info.Referer)

	resp, err := cl.client.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindTransport, err, "request to %s failed", path)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindTransport, err, "cannot read response from %s", path)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apierror.New(apierror.KindAuth, "upstream rejected the session (status %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, apierror.New(apierror.KindServer, "upstream returned status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, apierror.New(kind, "upstream returned status %d", resp.StatusCode)
	}

	var env jimeng.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apierror.Wrap(kind, err, "cannot decode response from %s", path)
	}
	if !env.OK() {
		msg := env.ErrMsg
		if msg == "" {
			msg = fmt.Sprintf("upstream error ret=%s", env.Ret)
		}
		return nil, apierror.New(kind, "%s", msg)
	}
	return env.Data, nil
}

// IssueUploadToken implements [upload.TokenIssuer].
func (cl *call) IssueUploadToken(ctx context.Context) (*jimeng.UploadToken, error) {
	data, err := cl.postJSON(ctx, uploadTokenPath, []byte(`{"scene":2}`), apierror.KindUploadToken)
	if err != nil {
		return nil, err
	}
	var token jimeng.UploadToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, apierror.Wrap(apierror.KindUploadToken, err, "cannot decode upload token")
	}
	return &token, nil
}

// checkCredit is best effort: on a zero balance it attempts the receive
// call; any failure is logged and never fails the generation.
func (cl *call) checkCredit(ctx context.Context) {
	data, err := cl.postJSON(ctx, creditPath, []byte(`{}`), apierror.KindServer)
	if err != nil {
		cl.logger.Warn("credit check failed", "err", err)
		return
	}
	points := gjson.GetBytes(data, "0.points")
	var balance jimeng.CreditBalance
	if points.Exists() {
		_ = json.Unmarshal([]byte(points.Raw), &balance)
	}
	cl.logger.Debug("credit balance",
		"gift", balance.GiftCredit, "purchase", balance.PurchaseCredit, "vip", balance.VIPCredit, "total", balance.TotalCredit)
	if balance.TotalCredit > 0 {
		return
	}
	if _, err := cl.postJSON(ctx, creditReceivePath, []byte(`{"time_zone":"Asia/Shanghai"}`), apierror.KindServer); err != nil {
		cl.logger.Warn("credit receive failed", "err", err)
		return
	}
	cl.logger.Info("daily credit received")
}

// submitDraft sends the draft and returns the history record id.
func (cl *call) submitDraft(ctx context.Context, sub draft.Submission) (string, error) {
	body, err := sub.Body()
	if err != nil {
		return "", apierror.Wrap(apierror.KindDraftSubmit, err, "cannot encode submission")
	}
	data, err := cl.postJSON(ctx, draftGeneratePath, body, apierror.KindDraftSubmit)
	if err != nil {
		return "", err
	}
	historyID := gjson.GetBytes(data, "aigc_data.history_record_id").String()
	if historyID == "" {
		return "", apierror.New(apierror.KindDraftSubmit, "draft response carries no history_record_id")
	}
	cl.logger.Info("draft submitted", "history_id", historyID, "submit_id", sub.SubmitID)
	return historyID, nil
}

// historyRequestBody builds the get_history_by_ids body.
func historyRequestBody(historyID string) ([]byte, error) {
	return json.Marshal(jimeng.HistoryRequest{
		HistoryIDs: []string{historyID},
		ImageInfo: jimeng.HistoryImageInfo{
			Width:  2048,
			Height: 2048,
			Format: "webp",
			ImageSceneList: []jimeng.ImageScene{
				{Scene: "smart_crop", Width: 360, Height: 360, UniqKey: "smart_crop-w:360-h:360", Format: "webp"},
				{Scene: "normal", Width: 2400, Height: 2400, UniqKey: "2400", Format: "webp"},
			},
		},
	})
}

// historyTick returns the poll closure for one history record.
func (cl *call) historyTick(historyID string) poller.Tick {
	body, bodyErr := historyRequestBody(historyID)
	return func(ctx context.Context) (poller.Status, any, error) {
		if bodyErr != nil {
			return poller.Status{}, nil, bodyErr
		}
		data, err := cl.postJSON(ctx, historyPath, body, apierror.KindTransport)
		if err != nil {
			return poller.Status{}, nil, err
		}
		record := gjson.GetBytes(data, escapeGJSONKey(historyID))
		if !record.Exists() {
			return poller.Status{}, nil, fmt.Errorf("history %s missing from response", historyID)
		}
		return poller.Status{
			Status:     int(record.Get("status").Int()),
			FailCode:   record.Get("fail_code").String(),
			ItemCount:  int(record.Get("item_list.#").Int()),
			FinishTime: record.Get("task.finish_time").Int(),
			HistoryID:  historyID,
		}, record.Raw, nil
	}
}

// escapeGJSONKey makes a literal map key safe for a gjson path.
func escapeGJSONKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '\\', '|', '#', '@':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}

// pollArtifacts runs the poller and extracts artifact URLs from the final
// history record.
func (cl *call) pollArtifacts(ctx context.Context, historyID string, cfg poller.Config) ([]string, error) {
	cfg.FailCodes = cl.client.opts.FailCodes
	cfg.Logger = cl.logger
	res, err := poller.Poll(ctx, cfg, cl.historyTick(historyID))
	if err != nil {
		return nil, err
	}
	cl.client.opts.Metrics.RecordPoll(ctx, string(cfg.Type), res.Ticks)
	record, _ := res.Data.(string)
	urls := extractArtifactURLs(record)
	if len(urls) == 0 {
		return nil, apierror.New(apierror.KindPollRemote, "history %s finished without artifacts", historyID)
	}
	cl.logger.Info("generation finished",
		"history_id", historyID, "artifacts", len(urls), "elapsed", res.Elapsed, "ticks", res.Ticks)
	return urls, nil
}

// extractArtifactURLs pulls the artifact URL of every item, preferring the
// full-size image, then the cover, then the transcoded video.
func extractArtifactURLs(record string) []string {
	var urls []string
	gjson.Get(record, "item_list").ForEach(func(_, item gjson.Result) bool {
		for _, path := range []string{
			"image.large_images.0.image_url",
			"common_attr.cover_url",
			"video.transcoded_video.origin.video_url",
		} {
			if u := item.Get(path).String(); u != "" {
				urls = append(urls, u)
				break
			}
		}
		return true
	})
	return urls
}
