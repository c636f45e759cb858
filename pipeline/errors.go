// Package pipeline contains the restyle pipeline: style generation, region
// extraction, embedding, and the shared error taxonomy that drives per-stage
// retry decisions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ghurfati/ghurfati/store"
)

// Stage identifies a pipeline stage in errors, metrics and failure records.
type Stage string

const (
	StageSubmission  Stage = "submission"
	StageGeneration  Stage = "generation"
	StageExtraction  Stage = "extraction"
	StageMatching    Stage = "matching"
	StageAggregation Stage = "aggregation"
)

// ErrorClass drives the retry decision for a failed stage call.
type ErrorClass int

const (
	// ErrorClassTerminal is the zero value: unknown errors never retry.
	ErrorClassTerminal ErrorClass = iota
	// ErrorClassValidation marks bad input or broken configuration.
	ErrorClassValidation
	// ErrorClassTransient marks ephemeral backend conditions worth retrying.
	ErrorClassTransient
	// ErrorClassCapacity marks admission rejection when the queue is full.
	ErrorClassCapacity
	// ErrorClassCanceled marks user cancellation.
	ErrorClassCanceled
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassValidation:
		return "validation"
	case ErrorClassTransient:
		return "transient"
	case ErrorClassCapacity:
		return "capacity"
	case ErrorClassCanceled:
		return "canceled"
	default:
		return "terminal"
	}
}

// ClassifiedError wraps an error with its class, the stage it failed in and
// an optional retry-after hint from the backend.
type ClassifiedError struct {
	Original   error
	Stage      Stage
	Class      ErrorClass
	RetryAfter time.Duration
}

func (e *ClassifiedError) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Class, e.Original)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Original
}

// Message returns a sanitized single-line description safe to surface to
// clients: the underlying error text without wrapped internals.
func (e *ClassifiedError) Message() string {
	if e.Original == nil {
		return e.Class.String()
	}
	msg := e.Original.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func NewValidationError(stage Stage, err error) *ClassifiedError {
	return &ClassifiedError{Original: err, Stage: stage, Class: ErrorClassValidation}
}

func NewTransientError(stage Stage, err error) *ClassifiedError {
	return &ClassifiedError{Original: err, Stage: stage, Class: ErrorClassTransient}
}

func NewCapacityError(stage Stage, err error) *ClassifiedError {
	return &ClassifiedError{Original: err, Stage: stage, Class: ErrorClassCapacity}
}

func NewCanceledError(stage Stage, err error) *ClassifiedError {
	return &ClassifiedError{Original: err, Stage: stage, Class: ErrorClassCanceled}
}

func NewTerminalError(stage Stage, err error) *ClassifiedError {
	return &ClassifiedError{Original: err, Stage: stage, Class: ErrorClassTerminal}
}

// BackendStatusError is an HTTP failure from a capability backend.
type BackendStatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *BackendStatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// transientPatterns are substrings of error text that indicate ephemeral
// network or backend conditions. Checked after the typed checks as a fallback.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"temporarily unavailable",
	"service unavailable",
	"too many requests",
	"rate limit",
	"unexpected eof",
}

// Classify assigns a class to err. Already-classified errors pass through
// untouched except for filling in a missing stage. Unknown errors classify
// terminal so nothing unexpected is retried.
func Classify(stage Stage, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		if classified.Stage == "" {
			classified.Stage = stage
		}
		return classified
	}

	if errors.Is(err, context.Canceled) {
		return NewCanceledError(stage, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(stage, err)
	}

	var dimErr *store.DimensionError
	if errors.As(err, &dimErr) {
		return NewValidationError(stage, err)
	}

	var statusErr *BackendStatusError
	if errors.As(err, &statusErr) {
		return classifyHTTPStatus(stage, err, statusErr.StatusCode)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(stage, err, apiErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(stage, err)
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return NewTransientError(stage, err)
		}
	}

	return NewTerminalError(stage, err)
}

func classifyHTTPStatus(stage Stage, err error, code int) *ClassifiedError {
	switch {
	case code == 408 || code == 429 || code >= 500:
		return NewTransientError(stage, err)
	default:
		return NewTerminalError(stage, err)
	}
}

// ShouldRetry reports whether the error is worth re-attempting.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return Classify("", err).Class == ErrorClassTransient
}

// RetryDelay returns the backoff before the given attempt (1-based) is
// retried: the backend's retry-after hint when present, otherwise
// exponential from base, capped at max.
func RetryDelay(err error, attempt int, base, max time.Duration) time.Duration {
	var classified *ClassifiedError
	if errors.As(err, &classified) && classified.RetryAfter > 0 {
		return classified.RetryAfter
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
