// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError stops retrying immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Backoff describes how often and how patiently an operation is retried.
// The zero value runs the operation once.
type Backoff struct {
	// Attempts counts the first call.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Jitter spreads each delay by up to ±Jitter of itself.
	Jitter float64

	// Retryable filters errors; nil retries everything not Permanent.
	Retryable func(error) bool
	// OnRetry observes each failed attempt before the wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Startup retries opening a store that may still be coming up.
func Startup(onRetry func(attempt int, err error, wait time.Duration)) Backoff {
	return Backoff{
		Attempts: 5,
		Initial:  200 * time.Millisecond,
		Max:      5 * time.Second,
		Jitter:   0.2,
		OnRetry:  onRetry,
	}
}

// Do calls op until it succeeds or the backoff gives up, returning the last
// error. A cancelled ctx ends the wait early.
func (b Backoff) Do(ctx context.Context, op func(context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		last = err
		if attempt >= b.Attempts || (b.Retryable != nil && !b.Retryable(err)) {
			return err
		}

		wait := b.wait(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
	}
}

// wait doubles Initial per attempt, capped at Max, then applies jitter.
func (b Backoff) wait(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt && (b.Max <= 0 || d < b.Max); i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, b Backoff, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}
