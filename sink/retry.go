package sink

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy wraps an operation with retries.
type RetryPolicy interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopRetry runs the operation once.
type NopRetry struct{}

func (NopRetry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// SimpleRetry retries an operation using exponential backoff.
//
// With zero BaseDelay and MaxDelay attempts run back to back.
type SimpleRetry struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    bool
	// Retryable reports whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(err error) bool
}

func (r SimpleRetry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := r.BaseDelay > 0 || r.MaxDelay > 0

	base := r.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}

	var last error
	delay := base

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(last) {
			return last
		}
		if i == attempts-1 || !sleep {
			continue
		}

		d := delay
		if r.Jitter {
			j := 0.8 + rand.Float64()*0.4
			d = time.Duration(float64(d) * j)
		}
		if d > maxDelay {
			d = maxDelay
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	return last
}

// WriteStreamWithRetry streams req to s under policy. The request body is
// written again on every attempt, so it must be replayable.
func WriteStreamWithRetry(ctx context.Context, s StreamSinkr, policy RetryPolicy, req StreamWriteRequest) error {
	if policy == nil {
		policy = NopRetry{}
	}
	if req.ContentType == "" {
		req.ContentType = "application/octet-stream"
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		return s.WriteStream(ctx, req)
	})
}

// WriteWithRetry is the buffered counterpart of WriteStreamWithRetry.
func WriteWithRetry(ctx context.Context, s Sinkr, policy RetryPolicy, req WriteRequest) error {
	if policy == nil {
		policy = NopRetry{}
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		return s.Write(ctx, req)
	})
}
