package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ghurfati/ghurfati/store"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "dial tcp: i/o problem" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{
			name: "context canceled",
			err:  context.Canceled,
			want: ErrorClassCanceled,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: ErrorClassTransient,
		},
		{
			name: "dimension mismatch",
			err:  &store.DimensionError{Want: 512, Got: 768},
			want: ErrorClassValidation,
		},
		{
			name: "backend 503",
			err:  &BackendStatusError{Op: "images edit", StatusCode: 503, Message: "overloaded"},
			want: ErrorClassTransient,
		},
		{
			name: "backend 429",
			err:  &BackendStatusError{Op: "images edit", StatusCode: 429, Message: "slow down"},
			want: ErrorClassTransient,
		},
		{
			name: "backend 400",
			err:  &BackendStatusError{Op: "images edit", StatusCode: 400, Message: "bad prompt"},
			want: ErrorClassTerminal,
		},
		{
			name: "openai 500",
			err:  &openai.APIError{HTTPStatusCode: 500, Message: "internal"},
			want: ErrorClassTransient,
		},
		{
			name: "openai 401",
			err:  &openai.APIError{HTTPStatusCode: 401, Message: "bad key"},
			want: ErrorClassTerminal,
		},
		{
			name: "net timeout",
			err:  &fakeNetError{timeout: true},
			want: ErrorClassTransient,
		},
		{
			name: "net non-timeout",
			err:  &fakeNetError{timeout: false},
			want: ErrorClassTransient,
		},
		{
			name: "connection refused text",
			err:  errors.New("post http://backend: connection refused"),
			want: ErrorClassTransient,
		},
		{
			name: "rate limit text",
			err:  errors.New("Rate Limit exceeded for key"),
			want: ErrorClassTransient,
		},
		{
			name: "unknown defaults to terminal",
			err:  errors.New("model produced garbage"),
			want: ErrorClassTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(StageGeneration, tt.err)
			if got == nil {
				t.Fatal("expected classified error, got nil")
			}
			if got.Class != tt.want {
				t.Errorf("class = %s, want %s", got.Class, tt.want)
			}
			if got.Stage != StageGeneration {
				t.Errorf("stage = %s, want %s", got.Stage, StageGeneration)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}

	if Classify(StageGeneration, nil) != nil {
		t.Error("nil error should classify to nil")
	}
}

func TestClassifyPassThrough(t *testing.T) {
	original := NewCapacityError("", errors.New("queue full"))
	got := Classify(StageSubmission, original)
	if got.Class != ErrorClassCapacity {
		t.Errorf("class = %s, want capacity", got.Class)
	}
	if got.Stage != StageSubmission {
		t.Errorf("stage = %s, want %s", got.Stage, StageSubmission)
	}

	// A classified error with a stage keeps it.
	tagged := NewTransientError(StageMatching, errors.New("flaky"))
	got = Classify(StageGeneration, tagged)
	if got.Stage != StageMatching {
		t.Errorf("stage = %s, want %s", got.Stage, StageMatching)
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(&BackendStatusError{Op: "edits", StatusCode: 502, Message: "bad gateway"}) {
		t.Error("502 should retry")
	}
	if ShouldRetry(NewValidationError(StageExtraction, errors.New("bad box"))) {
		t.Error("validation should not retry")
	}
	if ShouldRetry(NewCanceledError(StageGeneration, context.Canceled)) {
		t.Error("canceled should not retry")
	}
	if ShouldRetry(nil) {
		t.Error("nil should not retry")
	}
}

func TestRetryDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second
	err := errors.New("timeout")

	if got := RetryDelay(err, 1, base, max); got != base {
		t.Errorf("attempt 1 delay = %v, want %v", got, base)
	}
	if got := RetryDelay(err, 2, base, max); got != 200*time.Millisecond {
		t.Errorf("attempt 2 delay = %v, want 200ms", got)
	}
	if got := RetryDelay(err, 3, base, max); got != 400*time.Millisecond {
		t.Errorf("attempt 3 delay = %v, want 400ms", got)
	}
	if got := RetryDelay(err, 10, base, max); got != max {
		t.Errorf("attempt 10 delay = %v, want cap %v", got, max)
	}

	hinted := &ClassifiedError{
		Original:   errors.New("throttled"),
		Stage:      StageGeneration,
		Class:      ErrorClassTransient,
		RetryAfter: 5 * time.Second,
	}
	if got := RetryDelay(hinted, 1, base, max); got != 5*time.Second {
		t.Errorf("hinted delay = %v, want 5s", got)
	}
}

func TestClassifiedErrorMessage(t *testing.T) {
	err := NewTerminalError(StageGeneration, errors.New("first line\nsecond line"))
	if got := err.Message(); got != "first line" {
		t.Errorf("message = %q, want first line only", got)
	}
	if got := err.Error(); got != "generation: terminal: first line\nsecond line" {
		t.Errorf("error = %q", got)
	}
}
