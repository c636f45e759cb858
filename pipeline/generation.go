package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultStrength applies when a submission omits the strength parameter.
const DefaultStrength = 0.7

// styleCatalog maps supported style names to the prompt fragment describing
// them. The fragment feeds the edit prompt verbatim, so wording changes alter
// generated images.
var styleCatalog = map[string]string{
	"scandinavian": "light woods, soft neutral textiles, clean lines and airy minimal decor",
	"industrial":   "exposed brick, raw metal fixtures, dark leather and utilitarian surfaces",
	"bohemian":     "layered patterned textiles, rattan, abundant plants and warm eclectic decor",
	"minimalist":   "bare surfaces, monochrome palette, hidden storage and strict geometric order",
	"japandi":      "low wooden furniture, muted earth tones, paper lanterns and wabi-sabi calm",
	"coastal":      "whitewashed wood, linen, sea glass blues and relaxed beach-house airiness",
	"midcentury":   "teak furniture, tapered legs, saturated accent colors and atomic-age shapes",
}

// Styles returns the supported style names in sorted order.
func Styles() []string {
	names := make([]string, 0, len(styleCatalog))
	for name := range styleCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StyleParams are the user-facing knobs of a restyle job.
type StyleParams struct {
	Style    string
	Strength float64
	RoomHint string
}

func (p *StyleParams) Validate() error {
	if _, ok := styleCatalog[p.Style]; !ok {
		return fmt.Errorf("unknown style %q, supported: %s", p.Style, strings.Join(Styles(), ", "))
	}
	if p.Strength < 0 || p.Strength > 1 {
		return fmt.Errorf("strength %.2f out of range [0, 1]", p.Strength)
	}
	return nil
}

// BuildPrompt renders the deterministic edit prompt for the given params.
// The same params always produce the same prompt.
func BuildPrompt(params StyleParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Restyle this interior photo in %s style: %s.", params.Style, styleCatalog[params.Style])
	b.WriteString(" Keep the room layout, walls, windows and architecture unchanged.")
	switch {
	case params.Strength < 0.34:
		b.WriteString(" Apply the style subtly, changing only accents and textiles.")
	case params.Strength < 0.67:
		b.WriteString(" Apply the style moderately, replacing furniture where it clashes.")
	default:
		b.WriteString(" Apply the style fully, replacing furniture and decor throughout.")
	}
	if params.RoomHint != "" {
		fmt.Fprintf(&b, " The room is a %s.", params.RoomHint)
	}
	return b.String()
}

// Generated is the output of one style generation call.
type Generated struct {
	Image     []byte
	Prompt    string
	LatencyMs int64
}

// Generator produces a styled variant of a room photo.
type Generator interface {
	Generate(ctx context.Context, photo []byte, params StyleParams) (*Generated, error)
}

// GeneratorConfig configures the image edit backend.
type GeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Timeout time.Duration
}

// imageEditClient talks to an OpenAI-compatible image edit endpoint that
// accepts JSON bodies with a base64 source image and returns the standard
// images response shape (data[].b64_json or data[].url).
type imageEditClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	size       string
	timeout    time.Duration
}

// NewGenerator creates a Generator backed by an image edit HTTP endpoint.
func NewGenerator(cfg *GeneratorConfig) (Generator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("generation base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("generation model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &imageEditClient{
		httpClient: newHTTPClient(),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		size:       cfg.Size,
		timeout:    timeout,
	}, nil
}

type imageEditRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Image          string `json:"image"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageEditResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *imageEditClient) Generate(ctx context.Context, photo []byte, params StyleParams) (*Generated, error) {
	if len(photo) == 0 {
		return nil, NewValidationError(StageGeneration, errors.New("empty source photo"))
	}
	if err := params.Validate(); err != nil {
		return nil, NewValidationError(StageGeneration, err)
	}

	prompt := BuildPrompt(params)
	start := time.Now()

	payload, err := json.Marshal(imageEditRequest{
		Model:          c.model,
		Prompt:         prompt,
		Image:          base64.StdEncoding.EncodeToString(photo),
		N:              1,
		Size:           c.size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal edit request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build edit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("images edit call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read edit response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, c.statusError(resp, body)
	}

	var edit imageEditResponse
	if err := json.Unmarshal(body, &edit); err != nil {
		return nil, fmt.Errorf("decode edit response: %w", err)
	}
	if edit.Error != nil {
		return nil, &BackendStatusError{Op: "images edit", StatusCode: resp.StatusCode, Message: edit.Error.Message}
	}
	if len(edit.Data) == 0 {
		return nil, errors.New("images edit returned no data")
	}

	image, err := c.decodeImage(ctx, edit.Data[0].B64JSON, edit.Data[0].URL)
	if err != nil {
		return nil, err
	}

	return &Generated{
		Image:     image,
		Prompt:    prompt,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// statusError converts a non-2xx response into a classified error, carrying
// the Retry-After hint when the backend throttles.
func (c *imageEditClient) statusError(resp *http.Response, body []byte) error {
	message := strings.TrimSpace(string(body))
	var edit imageEditResponse
	if err := json.Unmarshal(body, &edit); err == nil && edit.Error != nil {
		message = edit.Error.Message
	}
	statusErr := &BackendStatusError{Op: "images edit", StatusCode: resp.StatusCode, Message: message}

	if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
		return &ClassifiedError{
			Original:   statusErr,
			Stage:      StageGeneration,
			Class:      ErrorClassTransient,
			RetryAfter: retryAfter,
		}
	}
	return statusErr
}

func (c *imageEditClient) decodeImage(ctx context.Context, b64, url string) ([]byte, error) {
	if b64 != "" {
		image, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		return image, nil
	}
	if url == "" {
		return nil, errors.New("images edit returned neither payload nor url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download generated image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, &BackendStatusError{Op: "image download", StatusCode: resp.StatusCode, Message: resp.Status}
	}
	image, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read downloaded image: %w", err)
	}
	return image, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
