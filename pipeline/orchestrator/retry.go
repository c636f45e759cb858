package orchestrator

import (
	"context"
	"time"

	"github.com/ghurfati/ghurfati/pipeline"
)

// RetryPolicy controls per-stage retries. Only transient errors retry;
// everything else fails the stage on the attempt that produced it.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the stock policy: three attempts with
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	return p
}

// Do runs fn until it succeeds, fails non-transiently or exhausts the
// attempt budget. It returns the number of attempts made and the classified
// error of the last attempt, nil on success. onRetry, when set, observes
// every scheduled retry before its backoff sleep.
func (p RetryPolicy) Do(ctx context.Context, stage pipeline.Stage, fn func(context.Context) error, onRetry func(attempt int, delay time.Duration, err error)) (int, error) {
	p = p.normalized()

	var lastErr *pipeline.ClassifiedError
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = pipeline.Classify(stage, err)
		if lastErr.Class != pipeline.ErrorClassTransient || attempt == p.MaxAttempts {
			return attempt, lastErr
		}

		delay := pipeline.RetryDelay(lastErr, attempt, p.InitialBackoff, p.MaxBackoff)
		if onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, pipeline.Classify(stage, ctx.Err())
		}
	}
	return p.MaxAttempts, lastErr
}
