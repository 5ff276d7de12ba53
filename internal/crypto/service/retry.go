package service

import (
	"context"
	"math/rand/v2"
	"time"

	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// RetryPolicy parameterizes the bounded exponential backoff applied to key
// service calls. Only failures classified as ErrServiceUnavailable are
// retried; every other error propagates immediately.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Ceiling for the backoff delay
}

// DefaultRetryPolicy is the fallback policy when configuration is absent.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// normalize clamps zero or negative fields to usable values.
func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 50 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// delay computes the backoff before the given retry (1-based), applying full
// jitter so synchronized callers don't hammer a recovering key service.
func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.BaseDelay << (retry - 1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(d)) + 1)
}

// Do runs fn until it succeeds, fails with a non-retryable error, exhausts
// the attempt budget, or the context is cancelled. On cancellation the
// in-flight attempt's error is replaced by the context error so callers see
// a retryable timeout rather than a hang.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.normalize()

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !apperrors.Is(err, apperrors.ErrServiceUnavailable) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
}
