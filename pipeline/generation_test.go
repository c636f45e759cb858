package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStyleParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  StyleParams
		wantErr bool
	}{
		{name: "scandinavian", params: StyleParams{Style: "scandinavian", Strength: 0.7}},
		{name: "japandi with hint", params: StyleParams{Style: "japandi", Strength: 0.5, RoomHint: "bedroom"}},
		{name: "strength floor", params: StyleParams{Style: "coastal", Strength: 0}},
		{name: "strength ceiling", params: StyleParams{Style: "industrial", Strength: 1}},
		{name: "unknown style", params: StyleParams{Style: "brutalist", Strength: 0.5}, wantErr: true},
		{name: "strength below range", params: StyleParams{Style: "minimalist", Strength: -0.1}, wantErr: true},
		{name: "strength above range", params: StyleParams{Style: "minimalist", Strength: 1.1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStylesSortedAndComplete(t *testing.T) {
	styles := Styles()
	if len(styles) != len(styleCatalog) {
		t.Fatalf("got %d styles, want %d", len(styles), len(styleCatalog))
	}
	for i := 1; i < len(styles); i++ {
		if styles[i-1] >= styles[i] {
			t.Errorf("styles not sorted at %d: %s >= %s", i, styles[i-1], styles[i])
		}
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	params := StyleParams{Style: "bohemian", Strength: 0.8, RoomHint: "living room"}
	first := BuildPrompt(params)
	second := BuildPrompt(params)
	if first != second {
		t.Error("same params must produce the same prompt")
	}
	if !strings.Contains(first, "bohemian") {
		t.Errorf("prompt missing style name: %q", first)
	}
	if !strings.Contains(first, "living room") {
		t.Errorf("prompt missing room hint: %q", first)
	}

	subtle := BuildPrompt(StyleParams{Style: "bohemian", Strength: 0.1})
	full := BuildPrompt(StyleParams{Style: "bohemian", Strength: 0.9})
	if subtle == full {
		t.Error("strength buckets should change prompt wording")
	}
}

func newTestGenerator(t *testing.T, baseURL string) Generator {
	t.Helper()
	gen, err := NewGenerator(&GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "image-edit-1",
		Size:    "1024x1024",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return gen
}

func TestGenerateFromB64(t *testing.T) {
	want := []byte("styled-image-bytes")
	var gotReq imageEditRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/edits" {
			t.Errorf("path = %s, want /images/edits", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": time.Now().Unix(),
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(want)}},
		})
	}))
	defer server.Close()

	gen := newTestGenerator(t, server.URL)
	got, err := gen.Generate(context.Background(), []byte("room-photo"), StyleParams{Style: "scandinavian", Strength: 0.7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(got.Image) != string(want) {
		t.Errorf("image = %q, want %q", got.Image, want)
	}
	if got.Prompt == "" {
		t.Error("prompt should be recorded")
	}
	if gotReq.Model != "image-edit-1" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if gotReq.Image != base64.StdEncoding.EncodeToString([]byte("room-photo")) {
		t.Error("request should carry the base64 source photo")
	}
}

func TestGenerateDownloadsURL(t *testing.T) {
	want := []byte("downloaded-image")
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/images/edits", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": server.URL + "/generated.png"}},
		})
	})
	mux.HandleFunc("/generated.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(want)
	})

	gen := newTestGenerator(t, server.URL)
	got, err := gen.Generate(context.Background(), []byte("room-photo"), StyleParams{Style: "coastal", Strength: 0.4})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(got.Image) != string(want) {
		t.Errorf("image = %q, want %q", got.Image, want)
	}
}

func TestGenerateRetryAfterHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "throttled"}}`))
	}))
	defer server.Close()

	gen := newTestGenerator(t, server.URL)
	_, err := gen.Generate(context.Background(), []byte("room-photo"), StyleParams{Style: "japandi", Strength: 0.5})
	if err == nil {
		t.Fatal("expected error")
	}

	classified := Classify(StageGeneration, err)
	if classified.Class != ErrorClassTransient {
		t.Errorf("class = %s, want transient", classified.Class)
	}
	if classified.RetryAfter != 7*time.Second {
		t.Errorf("retry after = %v, want 7s", classified.RetryAfter)
	}
	if got := RetryDelay(err, 1, 100*time.Millisecond, time.Minute); got != 7*time.Second {
		t.Errorf("RetryDelay = %v, want the backend hint", got)
	}
}

func TestGenerateStatusClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantRetry bool
	}{
		{name: "server error retries", status: http.StatusInternalServerError, wantRetry: true},
		{name: "bad gateway retries", status: http.StatusBadGateway, wantRetry: true},
		{name: "bad request does not retry", status: http.StatusBadRequest, wantRetry: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("backend failure"))
			}))
			defer server.Close()

			gen := newTestGenerator(t, server.URL)
			_, err := gen.Generate(context.Background(), []byte("room-photo"), StyleParams{Style: "midcentury", Strength: 0.5})
			if err == nil {
				t.Fatal("expected error")
			}
			var statusErr *BackendStatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected BackendStatusError, got %T", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", statusErr.StatusCode, tt.status)
			}
			if got := ShouldRetry(err); got != tt.wantRetry {
				t.Errorf("ShouldRetry = %v, want %v", got, tt.wantRetry)
			}
		})
	}
}

func TestGenerateRejectsBadParams(t *testing.T) {
	gen := newTestGenerator(t, "http://unused.invalid")

	_, err := gen.Generate(context.Background(), nil, StyleParams{Style: "coastal", Strength: 0.5})
	if Classify(StageGeneration, err).Class != ErrorClassValidation {
		t.Errorf("empty photo should be a validation error, got %v", err)
	}

	_, err = gen.Generate(context.Background(), []byte("photo"), StyleParams{Style: "nope", Strength: 0.5})
	if Classify(StageGeneration, err).Class != ErrorClassValidation {
		t.Errorf("unknown style should be a validation error, got %v", err)
	}
}
