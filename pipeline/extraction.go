package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/ghurfati/ghurfati/store"
)

// RegionProposal is a labeled furniture box in pixel coordinates as proposed
// by the detector, before clamping and ordering.
type RegionProposal struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	X        int32  `json:"x"`
	Y        int32  `json:"y"`
	Width    int32  `json:"width"`
	Height   int32  `json:"height"`
}

// Detector proposes furniture regions on a styled image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]RegionProposal, error)
}

// Cropper persists a region crop and returns its ref.
type Cropper interface {
	SaveCrop(source []byte, x, y, width, height int) (string, error)
}

// Extractor turns a styled image into ordered, embedded furniture regions.
// Job and styled image ids are stamped by the caller before persistence.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]*store.Region, error)
}

// DetectorConfig configures the vision detection backend.
type DetectorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

const detectionPrompt = `Identify every distinct furniture or decor item in this interior photo.
Respond with JSON only, in this exact shape:
{"regions": [{"label": "<short caption, e.g. three-seat fabric sofa>", "category": "<one of: sofa, armchair, chair, table, desk, bed, wardrobe, shelf, lamp, rug, mirror, plant, decor>", "x": <left px>, "y": <top px>, "width": <px>, "height": <px>}]}
Use pixel coordinates relative to the image. Skip walls, floors, windows and doors. Return {"regions": []} if nothing qualifies.`

type visionDetector struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewDetector creates a Detector backed by an OpenAI-compatible vision model.
func NewDetector(cfg *DetectorConfig) (Detector, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("detection model is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &visionDetector{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
	}, nil
}

func (d *visionDetector) Detect(ctx context.Context, img []byte) ([]RegionProposal, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	dataURL := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(img), base64.StdEncoding.EncodeToString(img))

	req := openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: detectionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision detection failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty detection response")
	}

	return parseProposals(resp.Choices[0].Message.Content)
}

// parseProposals decodes the model's JSON reply, tolerating markdown fences.
func parseProposals(response string) ([]RegionProposal, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var parsed struct {
		Regions []RegionProposal `json:"regions"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("parse detection JSON: %w", err)
	}
	return parsed.Regions, nil
}

type regionExtractor struct {
	detector Detector
	embedder Embedder
	cropper  Cropper
}

// NewExtractor wires detection, caption embedding and crop persistence.
func NewExtractor(detector Detector, embedder Embedder, cropper Cropper) Extractor {
	return &regionExtractor{
		detector: detector,
		embedder: embedder,
		cropper:  cropper,
	}
}

func (e *regionExtractor) Extract(ctx context.Context, img []byte) ([]*store.Region, error) {
	bounds, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode styled image: %w", err)
	}

	proposals, err := e.detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	proposals = clampProposals(proposals, int32(bounds.Width), int32(bounds.Height))
	if len(proposals) == 0 {
		return []*store.Region{}, nil
	}

	// Deterministic order: top-to-bottom, left-to-right, label as tiebreak.
	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].Y != proposals[j].Y {
			return proposals[i].Y < proposals[j].Y
		}
		if proposals[i].X != proposals[j].X {
			return proposals[i].X < proposals[j].X
		}
		return proposals[i].Label < proposals[j].Label
	})

	captions := make([]string, len(proposals))
	for i, p := range proposals {
		captions[i] = p.Label
	}
	embeddings, err := e.embedder.EmbedBatch(ctx, captions)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(proposals) {
		return nil, fmt.Errorf("embedding count %d does not match %d regions", len(embeddings), len(proposals))
	}

	regions := make([]*store.Region, 0, len(proposals))
	for i, p := range proposals {
		cropRef, err := e.cropper.SaveCrop(img, int(p.X), int(p.Y), int(p.Width), int(p.Height))
		if err != nil {
			return nil, fmt.Errorf("save region crop: %w", err)
		}
		regions = append(regions, &store.Region{
			ID:        uuid.New().String(),
			Idx:       int32(i),
			Label:     p.Label,
			Category:  strings.ToLower(strings.TrimSpace(p.Category)),
			X:         p.X,
			Y:         p.Y,
			Width:     p.Width,
			Height:    p.Height,
			CropRef:   cropRef,
			Embedding: embeddings[i],
		})
	}
	return regions, nil
}

// clampProposals snaps boxes into image bounds and drops degenerate ones.
func clampProposals(proposals []RegionProposal, width, height int32) []RegionProposal {
	kept := make([]RegionProposal, 0, len(proposals))
	for _, p := range proposals {
		if strings.TrimSpace(p.Label) == "" {
			continue
		}
		if p.X < 0 {
			p.Width += p.X
			p.X = 0
		}
		if p.Y < 0 {
			p.Height += p.Y
			p.Y = 0
		}
		if p.X >= width || p.Y >= height {
			continue
		}
		if p.X+p.Width > width {
			p.Width = width - p.X
		}
		if p.Y+p.Height > height {
			p.Height = height - p.Y
		}
		if p.Width <= 0 || p.Height <= 0 {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
