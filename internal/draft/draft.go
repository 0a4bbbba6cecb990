// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package draft builds the nested draft document submitted to
// aigc_draft/generate. The tree is assembled from typed nodes and only
// serialized at the edge; every node gets a fresh identifier in one pass.
package draft

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

const (
	draftVersion    = "3.2.9"
	draftMinVersion = "3.0.2"
)

// blendPromptPrefix marks reference-image prompts for the upstream.
const blendPromptPrefix = "##"

type node struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func newNode(typ string) node { return node{Type: typ, ID: uuid.New().String()} }

// Document is the root of the draft tree.
type Document struct {
	Type            string      `json:"type"`
	ID              string      `json:"id"`
	MinVersion      string      `json:"min_version"`
	MinFeatures     []string    `json:"min_features"`
	IsFromTSN       bool        `json:"is_from_tsn"`
	Version         string      `json:"version"`
	MainComponentID string      `json:"main_component_id"`
	ComponentList   []Component `json:"component_list"`
}

// Component is the sole draft component; MainComponentID always points at
// it.
type Component struct {
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	MinVersion   string    `json:"min_version"`
	AIGCMode     string    `json:"aigc_mode"`
	Metadata     Metadata  `json:"metadata"`
	GenerateType string    `json:"generate_type"`
	Abilities    Abilities `json:"abilities"`
}

// Metadata records the creating platform of a component.
type Metadata struct {
	Type                   string `json:"type"`
	ID                     string `json:"id"`
	CreatedPlatform        int    `json:"created_platform"`
	CreatedPlatformVersion string `json:"created_platform_version"`
	CreatedTimeInMS        int64  `json:"created_time_in_ms"`
	CreatedDID             string `json:"created_did"`
}

// Abilities holds exactly one mode-specific ability.
type Abilities struct {
	node
	Generate *GenerateAbility `json:"generate,omitempty"`
	Blend    *BlendAbility    `json:"blend,omitempty"`
	GenVideo *GenVideoAbility `json:"gen_video,omitempty"`
}

// GenerateAbility is the text-to-image mode.
type GenerateAbility struct {
	node
	CoreParam     ImageCoreParam `json:"core_param"`
	HistoryOption node           `json:"history_option"`
}

// BlendAbility is the image-to-image mode.
type BlendAbility struct {
	node
	CoreParam                 ImageCoreParam    `json:"core_param"`
	AbilityList               []Ability         `json:"ability_list"`
	PromptPlaceholderInfoList []PlaceholderInfo `json:"prompt_placeholder_info_list"`
	PosteditParam             PosteditParam     `json:"postedit_param"`
	HistoryOption             node              `json:"history_option"`
}

// GenVideoAbility is the video mode, for both text and frame inputs.
type GenVideoAbility struct {
	node
	VideoGenInputs []VideoGenInput `json:"video_gen_inputs"`
	ModelReqKey    string          `json:"model_req_key"`
	Seed           int64           `json:"seed"`
	VideoRatio     int             `json:"video_ratio"`
	LargeImageInfo LargeImageInfo  `json:"large_image_info"`
	Priority       int             `json:"priority"`
}

// ImageCoreParam carries the shared generation parameters. The same
// ImageRatio/LargeImageInfo pair is echoed into every core parameter block
// of the draft.
type ImageCoreParam struct {
	node
	Model            string         `json:"model"`
	Prompt           string         `json:"prompt"`
	NegativePrompt   string         `json:"negative_prompt"`
	Seed             int64          `json:"seed"`
	SampleStrength   float64        `json:"sample_strength"`
	ImageRatio       int            `json:"image_ratio"`
	LargeImageInfo   LargeImageInfo `json:"large_image_info"`
	IntelligentRatio bool           `json:"intelligent_ratio"`
}

// LargeImageInfo is the sizing block echoed through the draft.
type LargeImageInfo struct {
	node
	Height         int    `json:"height"`
	Width          int    `json:"width"`
	ResolutionType string `json:"resolution_type"`
}

// Ability is one reference-image contribution; ability_list is positional
// and must match the client's submission order.
type Ability struct {
	node
	Name         string     `json:"name"`
	ImageURIList []string   `json:"image_uri_list"`
	ImageList    []ImageRef `json:"image_list"`
	Strength     float64    `json:"strength"`
}

// ImageRef points at one committed upload.
type ImageRef struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	SourceFrom   string `json:"source_from"`
	PlatformType int    `json:"platform_type"`
	Name         string `json:"name"`
	ImageURI     string `json:"image_uri"`
	URI          string `json:"uri"`
}

// PlaceholderInfo indexes one ability from the prompt.
type PlaceholderInfo struct {
	node
	AbilityIndex int `json:"ability_index"`
}

// PosteditParam is required by the blend schema.
type PosteditParam struct {
	node
	GenerateType int `json:"generate_type"`
}

// VideoGenInput is one video generation input block.
type VideoGenInput struct {
	node
	Prompt          string    `json:"prompt"`
	FirstFrameImage *ImageRef `json:"first_frame_image,omitempty"`
	EndFrameImage   *ImageRef `json:"end_frame_image,omitempty"`
	DurationMS      int       `json:"duration_ms"`
	FPS             int       `json:"fps"`
	VideoMode       int       `json:"video_mode"`
	Resolution      string    `json:"resolution"`
}

// newSeed draws the per-call seed from [2.5e9, 2.6e9).
func newSeed() int64 {
	return 2_500_000_000 + rand.Int64N(100_000_000)
}

func newImageRef(uri string) ImageRef {
	return ImageRef{
		Type:         "image",
		ID:           uuid.New().String(),
		SourceFrom:   "upload",
		PlatformType: 1,
		ImageURI:     uri,
		URI:          uri,
	}
}

func newComponent(componentType, generateType string, abilities Abilities) Component {
	return Component{
		Type:       componentType,
		ID:         uuid.New().String(),
		MinVersion: draftMinVersion,
		AIGCMode:   "workbench",
		Metadata: Metadata{
			ID:              uuid.New().String(),
			CreatedPlatform: 3,
			CreatedTimeInMS: time.Now().UnixMilli(),
		},
		GenerateType: generateType,
		Abilities:    abilities,
	}
}

func newDocument(component Component) Document {
	return Document{
		Type:            "draft",
		ID:              uuid.New().String(),
		MinVersion:      draftMinVersion,
		MinFeatures:     []string{},
		IsFromTSN:       true,
		Version:         draftVersion,
		MainComponentID: component.ID,
		ComponentList:   []Component{component},
	}
}

// ImageRequest are the resolved inputs of an image draft. Model is the
// upstream request key, already mapped.
type ImageRequest struct {
	Model          string
	Prompt         string
	NegativePrompt string
	SampleStrength float64
	Params         Params
}

func newImageCoreParam(r ImageRequest, prompt string) ImageCoreParam {
	return ImageCoreParam{
		node:           newNode(""),
		Model:          r.Model,
		Prompt:         prompt,
		NegativePrompt: r.NegativePrompt,
		Seed:           newSeed(),
		SampleStrength: r.SampleStrength,
		ImageRatio:     r.Params.ImageRatio,
		LargeImageInfo: LargeImageInfo{
			node:           newNode(""),
			Height:         r.Params.Height,
			Width:          r.Params.Width,
			ResolutionType: r.Params.ResolutionType,
		},
		// Reserved: the upstream does not honor intelligent_ratio yet, so the
		// emitted draft always carries false.
		IntelligentRatio: false,
	}
}

// TextToImage builds a generate-mode draft document.
func TextToImage(r ImageRequest) Document {
	component := newComponent("image_base_component", "generate", Abilities{
		node: newNode(""),
		Generate: &GenerateAbility{
			node:          newNode(""),
			CoreParam:     newImageCoreParam(r, r.Prompt),
			HistoryOption: newNode(""),
		},
	})
	return newDocument(component)
}

// Blend builds a blend-mode draft document with one ability per uploaded
// URI, in upload order.
func Blend(r ImageRequest, uris []string) Document {
	abilities := make([]Ability, 0, len(uris))
	placeholders := make([]PlaceholderInfo, 0, len(uris))
	for i, uri := range uris {
		abilities = append(abilities, Ability{
			node:         newNode(""),
			Name:         "byte_edit",
			ImageURIList: []string{uri},
			ImageList:    []ImageRef{newImageRef(uri)},
			Strength:     r.SampleStrength,
		})
		placeholders = append(placeholders, PlaceholderInfo{node: newNode(""), AbilityIndex: i})
	}
	component := newComponent("image_base_component", "blend", Abilities{
		node: newNode(""),
		Blend: &BlendAbility{
			node:                      newNode(""),
			CoreParam:                 newImageCoreParam(r, blendPromptPrefix+r.Prompt),
			AbilityList:               abilities,
			PromptPlaceholderInfoList: placeholders,
			PosteditParam:             PosteditParam{node: newNode("")},
			HistoryOption:             newNode(""),
		},
	})
	return newDocument(component)
}

// VideoRequest are the resolved inputs of a video draft.
type VideoRequest struct {
	Model           string
	Prompt          string
	DurationSeconds int
	Params          Params
	// FrameURIs holds zero to two committed frame URIs: first frame, then
	// last frame.
	FrameURIs []string
}

// Video builds a gen_video draft document. The first frame URI precedes the
// last frame.
func Video(r VideoRequest) Document {
	input := VideoGenInput{
		node:       newNode(""),
		Prompt:     r.Prompt,
		DurationMS: r.DurationSeconds * 1000,
		FPS:        24,
		VideoMode:  2,
		Resolution: "720p",
	}
	if len(r.FrameURIs) > 0 {
		ref := newImageRef(r.FrameURIs[0])
		input.FirstFrameImage = &ref
	}
	if len(r.FrameURIs) > 1 {
		ref := newImageRef(r.FrameURIs[1])
		input.EndFrameImage = &ref
	}
	component := newComponent("video_base_component", "gen_video", Abilities{
		node: newNode(""),
		GenVideo: &GenVideoAbility{
			node:           newNode(""),
			VideoGenInputs: []VideoGenInput{input},
			ModelReqKey:    r.Model,
			Seed:           newSeed(),
			VideoRatio:     r.Params.ImageRatio,
			LargeImageInfo: LargeImageInfo{
				node:           newNode(""),
				Height:         r.Params.Height,
				Width:          r.Params.Width,
				ResolutionType: r.Params.ResolutionType,
			},
		},
	})
	return newDocument(component)
}

// Content serializes the draft tree to the draft_content string.
func (d Document) Content() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("cannot encode draft: %w", err)
	}
	return string(b), nil
}

// Submission is the sibling envelope around draft_content.
type Submission struct {
	SubmitID      string
	DraftContent  string
	RootModel     string
	GenerateCount int
	AID           int
}

// NewSubmission wraps a draft document for aigc_draft/generate.
func NewSubmission(d Document, rootModel string, generateCount, aid int) (Submission, error) {
	content, err := d.Content()
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		SubmitID:      uuid.New().String(),
		DraftContent:  content,
		RootModel:     rootModel,
		GenerateCount: generateCount,
		AID:           aid,
	}, nil
}

// Body renders the submission JSON body.
func (s Submission) Body() ([]byte, error) {
	metricsExtra, err := json.Marshal(map[string]any{
		"promptSource":  "custom",
		"generateCount": s.GenerateCount,
		"enterFrom":     "click",
		"generateId":    uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot encode metrics_extra: %w", err)
	}

	body := []byte(`{}`)
	for _, set := range []struct {
		path  string
		value any
	}{
		{"extend.root_model", s.RootModel},
		{"extend.template_id", ""},
		{"submit_id", s.SubmitID},
		{"metrics_extra", string(metricsExtra)},
		{"draft_content", s.DraftContent},
		{"http_common_info.aid", s.AID},
	} {
		body, err = sjson.SetBytes(body, set.path, set.value)
		if err != nil {
			return nil, fmt.Errorf("cannot set %s: %w", set.path, err)
		}
	}
	return body, nil
}
