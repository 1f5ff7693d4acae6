package provider

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/logging"
)

// RetryOptions configures the bounded-retry wrapper.
type RetryOptions struct {
	// MaxRetries is how many times a failed Complete is retried before the
	// failure is surfaced. Zero disables retrying.
	MaxRetries int
	// BaseDelay is the first backoff interval; it doubles per attempt.
	BaseDelay time.Duration
	// Logger receives per-attempt diagnostics.
	Logger logging.Logger
}

// retryBackend wraps a Backend with bounded exponential-backoff retries on
// transient failures. Context cancellation is never retried.
type retryBackend struct {
	inner Backend
	opts  RetryOptions
}

// WithRetry wraps the backend so transient provider failures are retried up
// to maxRetries times before surfacing a PROVIDER_ERROR.
func WithRetry(inner Backend, maxRetries int, optFns ...func(o *RetryOptions)) Backend {
	opts := RetryOptions{
		MaxRetries: maxRetries,
		BaseDelay:  500 * time.Millisecond,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &retryBackend{inner: inner, opts: opts}
}

// Complete implements Backend.
func (r *retryBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	var lastErr error
	delay := r.opts.BaseDelay

	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			r.opts.Logger.Warn("provider.retry",
				"attempt", attempt, "max", r.opts.MaxRetries, "error", lastErr.Error())
			select {
			case <-ctx.Done():
				return nil, core.WrapError(core.CodeCancelled, "retry wait cancelled", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		completion, err := r.inner.Complete(ctx, req)
		if err == nil {
			return completion, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapError(core.CodeCancelled, "model call cancelled", err)
		}
		lastErr = err
	}

	if core.HasCode(lastErr, core.CodeProviderError) {
		return nil, lastErr
	}
	return nil, core.WrapError(core.CodeProviderError, "model backend failed after retries", lastErr)
}

// Info implements Backend.
func (r *retryBackend) Info() Info { return r.inner.Info() }
