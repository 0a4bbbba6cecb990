// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package jimeng holds the wire types of the upstream generation API and
// its regional object store. Only the fields the gateway consumes are
// declared; everything else passes through untouched.
package jimeng

import "encoding/json"

// Envelope is the common response wrapper of the /mweb/v1 endpoints.
// Ret is "0" on success.
type Envelope struct {
	Ret    string          `json:"ret"`
	ErrMsg string          `json:"errmsg"`
	Data   json.RawMessage `json:"data"`
}

// OK reports whether the envelope carries a success code.
func (e *Envelope) OK() bool { return e.Ret == "0" }

// UploadToken is the payload of get_upload_token. The credential triple
// signs ApplyImageUpload/CommitImageUpload; ServiceID (or SpaceName for
// international accounts) scopes the upload.
type UploadToken struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
	ServiceID       string `json:"service_id"`
	SpaceName       string `json:"space_name"`
}

// ResponseMetadata carries the imagex API error block, present on failures.
type ResponseMetadata struct {
	Error *ImagexError `json:"Error"`
}

// ImagexError is the imagex API error payload.
type ImagexError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// StoreInfo identifies one staged object and the Authorization value for
// its direct PUT.
type StoreInfo struct {
	StoreURI string `json:"StoreUri"`
	Auth     string `json:"Auth"`
}

// UploadAddress is returned by ApplyImageUpload.
type UploadAddress struct {
	StoreInfos  []StoreInfo `json:"StoreInfos"`
	UploadHosts []string    `json:"UploadHosts"`
	SessionKey  string      `json:"SessionKey"`
}

// ApplyImageUploadResponse wraps the apply result.
type ApplyImageUploadResponse struct {
	ResponseMetadata ResponseMetadata `json:"ResponseMetadata"`
	Result           struct {
		UploadAddress UploadAddress `json:"UploadAddress"`
	} `json:"Result"`
}

// CommitResult is one committed object. UriStatus 2000 means the object is
// live; anything else is a failed commit.
type CommitResult struct {
	URI       string `json:"Uri"`
	URIStatus int    `json:"UriStatus"`
}

// CommitImageUploadResponse wraps the commit result.
type CommitImageUploadResponse struct {
	ResponseMetadata ResponseMetadata `json:"ResponseMetadata"`
	Result           struct {
		Results []CommitResult `json:"Results"`
	} `json:"Result"`
}

// URIStatusOK is the UriStatus value of a successful commit.
const URIStatusOK = 2000

// HistoryImageInfo is the rendering spec echoed on get_history_by_ids.
type HistoryImageInfo struct {
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	Format         string       `json:"format"`
	ImageSceneList []ImageScene `json:"image_scene_list"`
}

// ImageScene asks the upstream to render one derived artifact size.
type ImageScene struct {
	Scene   string `json:"scene"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	UniqKey string `json:"uniq_key"`
	Format  string `json:"format"`
}

// HistoryRequest is the body of get_history_by_ids.
type HistoryRequest struct {
	HistoryIDs []string         `json:"history_ids"`
	ImageInfo  HistoryImageInfo `json:"image_info"`
}

// CreditBalance is the points breakdown of the first /token/points entry.
type CreditBalance struct {
	GiftCredit     int64 `json:"giftCredit"`
	PurchaseCredit int64 `json:"purchaseCredit"`
	VIPCredit      int64 `json:"vipCredit"`
	TotalCredit    int64 `json:"totalCredit"`
}
