// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package generation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/apischema/openai"
	"github.com/jimengapi/jimeng-gateway/internal/draft"
	"github.com/jimengapi/jimeng-gateway/internal/imageinput"
	"github.com/jimengapi/jimeng-gateway/internal/poller"
	"github.com/jimengapi/jimeng-gateway/internal/tokenpool"
)

const (
	defaultSampleStrength = 0.5
	minVideoDuration      = 4
	maxVideoDuration      = 15
	defaultVideoDuration  = 5
	maxCompositionImages  = 10
	maxVideoFrames        = 2
)

// GenerateImages runs text-to-image and returns artifact URLs.
func (c *Client) GenerateImages(ctx context.Context, pool *tokenpool.Pool, req *openai.ImageGenerationRequest) (urls []string, err error) {
	start := time.Now()
	defer func() { c.opts.Metrics.RecordRequest(ctx, "images.generations", err == nil, time.Since(start)) }()

	if err = validateSizing(req.Size, req.Width, req.Height); err != nil {
		return nil, err
	}
	if req.Prompt == "" {
		return nil, apierror.New(apierror.KindValidation, "prompt is required")
	}
	strength, err := sampleStrength(req.SampleStrength)
	if err != nil {
		return nil, err
	}

	cl, err := c.newCall(pool, uuid.New().String())
	if err != nil {
		return nil, err
	}
	model, err := cl.imageModels().Resolve(req.Model)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "cannot resolve model")
	}
	params, err := draft.ParamsFor(req.Model, draft.Resolution(req.Resolution), draft.Ratio(req.Ratio), cl.logger)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "cannot resolve sizing")
	}

	expected := draft.ExpectedImageCount(req.Model, req.Prompt)
	doc := draft.TextToImage(draft.ImageRequest{
		Model:          model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		SampleStrength: strength,
		Params:         params,
	})
	sub, err := draft.NewSubmission(doc, model, expected, cl.aid())
	if err != nil {
		return nil, apierror.Wrap(apierror.KindDraftSubmit, err, "cannot build submission")
	}

	cl.checkCredit(ctx)
	historyID, err := cl.submitDraft(ctx, sub)
	if err != nil {
		return nil, err
	}
	return cl.pollArtifacts(ctx, historyID, poller.NewConfig(poller.TypeImage, expected))
}

// GenerateImageComposition runs image-to-image with 1..10 reference
// images. Uploads run sequentially so ability order matches input order.
func (c *Client) GenerateImageComposition(ctx context.Context, pool *tokenpool.Pool, req *openai.ImageCompositionRequest) (urls []string, err error) {
	start := time.Now()
	defer func() { c.opts.Metrics.RecordRequest(ctx, "images.compositions", err == nil, time.Since(start)) }()

	if err = validateSizing(req.Size, req.Width, req.Height); err != nil {
		return nil, err
	}
	if req.Prompt == "" {
		return nil, apierror.New(apierror.KindValidation, "prompt is required")
	}
	if len(req.Images) == 0 {
		return nil, apierror.New(apierror.KindValidation, "at least one image is required")
	}
	if len(req.Images) > maxCompositionImages {
		return nil, apierror.New(apierror.KindValidation, "at most %d images are accepted, got %d", maxCompositionImages, len(req.Images))
	}
	strength, err := sampleStrength(req.SampleStrength)
	if err != nil {
		return nil, err
	}

	cl, err := c.newCall(pool, uuid.New().String())
	if err != nil {
		return nil, err
	}
	model, err := cl.imageModels().Resolve(req.Model)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "cannot resolve model")
	}
	params, err := draft.ParamsFor(req.Model, draft.Resolution(req.Resolution), draft.Ratio(req.Ratio), cl.logger)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "cannot resolve sizing")
	}

	inputs := make([]imageinput.Input, 0, len(req.Images))
	for _, raw := range req.Images {
		inputs = append(inputs, imageinput.Detect(raw))
	}
	uris, err := c.uploadAll(ctx, cl, inputs)
	if err != nil {
		return nil, err
	}

	expected := draft.ExpectedImageCount(req.Model, req.Prompt)
	doc := draft.Blend(draft.ImageRequest{
		Model:          model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		SampleStrength: strength,
		Params:         params,
	}, uris)
	sub, err := draft.NewSubmission(doc, model, expected, cl.aid())
	if err != nil {
		return nil, apierror.Wrap(apierror.KindDraftSubmit, err, "cannot build submission")
	}

	cl.checkCredit(ctx)
	historyID, err := cl.submitDraft(ctx, sub)
	if err != nil {
		return nil, err
	}
	return cl.pollArtifacts(ctx, historyID, poller.NewConfig(poller.TypeImage, expected))
}

// GenerateVideo runs text-to-video or frame-to-video and returns the single
// artifact URL.
func (c *Client) GenerateVideo(ctx context.Context, pool *tokenpool.Pool, req *openai.VideoGenerationRequest) (url string, err error) {
	start := time.Now()
	defer func() { c.opts.Metrics.RecordRequest(ctx, "videos.generations", err == nil, time.Since(start)) }()

	if req.Prompt == "" {
		return "", apierror.New(apierror.KindValidation, "prompt is required")
	}
	duration, set, err := req.DurationSeconds()
	if err != nil {
		return "", apierror.Wrap(apierror.KindValidation, err, "invalid duration")
	}
	if !set {
		duration = defaultVideoDuration
	}
	if duration < minVideoDuration || duration > maxVideoDuration {
		return "", apierror.New(apierror.KindValidation, "duration must be between %d and %d seconds, got %d", minVideoDuration, maxVideoDuration, duration)
	}
	framePaths := req.AllFilePaths()
	if len(framePaths) > maxVideoFrames {
		return "", apierror.New(apierror.KindValidation, "at most %d frame files are accepted, got %d", maxVideoFrames, len(framePaths))
	}

	cl, err := c.newCall(pool, uuid.New().String())
	if err != nil {
		return "", err
	}
	model, err := cl.videoModels().Resolve(req.Model)
	if err != nil {
		return "", apierror.Wrap(apierror.KindValidation, err, "cannot resolve model")
	}
	params, err := draft.Lookup(draft.Resolution1K, draft.Ratio(nonEmpty(req.Ratio, "16:9")))
	if err != nil {
		return "", apierror.Wrap(apierror.KindValidation, err, "cannot resolve sizing")
	}

	// First frame precedes last frame in the draft.
	inputs := make([]imageinput.Input, 0, len(framePaths))
	for _, p := range framePaths {
		inputs = append(inputs, imageinput.Detect(p))
	}
	uris, err := c.uploadAll(ctx, cl, inputs)
	if err != nil {
		return "", err
	}

	doc := draft.Video(draft.VideoRequest{
		Model:           model,
		Prompt:          req.Prompt,
		DurationSeconds: duration,
		Params:          params,
		FrameURIs:       uris,
	})
	sub, err := draft.NewSubmission(doc, model, 1, cl.aid())
	if err != nil {
		return "", apierror.Wrap(apierror.KindDraftSubmit, err, "cannot build submission")
	}

	cl.checkCredit(ctx)
	historyID, err := cl.submitDraft(ctx, sub)
	if err != nil {
		return "", err
	}
	urls, err := cl.pollArtifacts(ctx, historyID, poller.NewConfig(poller.TypeVideo, 1))
	if err != nil {
		return "", err
	}
	return urls[0], nil
}

// GenerateSession mints a fresh session token through the configured
// provider.
func (c *Client) GenerateSession(ctx context.Context) (string, error) {
	token, err := c.opts.Sessions.GenerateSession(ctx)
	if err != nil {
		return "", apierror.Wrap(apierror.KindProvisioning, err, "session provider failed")
	}
	if token == "" {
		return "", apierror.New(apierror.KindProvisioning, "session provider returned an empty token")
	}
	return token, nil
}

func (c *Client) uploadAll(ctx context.Context, cl *call, inputs []imageinput.Input) ([]string, error) {
	uris, err := c.uploader.UploadAll(ctx, cl.info, cl, inputs)
	if err != nil {
		c.opts.Metrics.RecordUpload(ctx, false)
		return nil, err
	}
	for range uris {
		c.opts.Metrics.RecordUpload(ctx, true)
	}
	return uris, nil
}

func validateSizing(size *string, width, height *int) error {
	if size != nil || width != nil || height != nil {
		return apierror.New(apierror.KindValidation, "size, width and height are not supported; use ratio and resolution")
	}
	return nil
}

func sampleStrength(v *float64) (float64, error) {
	if v == nil {
		return defaultSampleStrength, nil
	}
	if *v < 0 || *v > 1 {
		return 0, apierror.New(apierror.KindValidation, "sample_strength must be within [0,1], got %v", *v)
	}
	return *v, nil
}

func nonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
