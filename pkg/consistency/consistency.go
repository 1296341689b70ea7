// Package consistency provides caller-side helpers for the warehouse's
// eventual behaviors: DML refused while streamed rows sit in the write
// buffer, and streamed rows that are not yet visible to queries.
//
// The runtime never retries on its own. Callers opt in:
//
//	err := consistency.Retry(ctx, core.DefaultRetryPolicy(), func(ctx context.Context) error {
//	    _, err := users.Update(ctx, values, filter)
//	    return err
//	})
//
//	err := consistency.RetryUntil(ctx, nil, func(ctx context.Context) (bool, error) {
//	    rec, err := users.FindByPk(ctx, id, query.FindRequest{})
//	    return rec != nil, err
//	})
package consistency

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/theory-cloud/columntheory/pkg/core"
	"github.com/theory-cloud/columntheory/pkg/errors"
)

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. Only errors.IsRetryable errors are retried.
func Retry(ctx context.Context, policy *core.RetryPolicy, fn func(context.Context) error) error {
	if policy == nil {
		policy = core.DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, Backoff(policy, attempt)); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !errors.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", policy.MaxRetries, lastErr)
}

// RetryUntil calls check until it reports true. Errors from check stop the
// loop unless they are retryable.
func RetryUntil(ctx context.Context, policy *core.RetryPolicy, check func(context.Context) (bool, error)) error {
	if policy == nil {
		policy = core.DefaultRetryPolicy()
	}

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, Backoff(policy, attempt)); err != nil {
				return err
			}
		}

		ok, err := check(ctx)
		if err != nil && !errors.IsRetryable(err) {
			return err
		}
		if ok && err == nil {
			return nil
		}
	}
	return fmt.Errorf("verification failed after %d retries", policy.MaxRetries)
}

// Backoff returns the delay before the given attempt (1-based).
func Backoff(policy *core.RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter > 0 {
		delay += delay * policy.Jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
