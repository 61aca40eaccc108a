package repository

import (
	"context"
	"errors"
	"time"

	apperrors "agency-platform/pkg/errors"
)

const (
	// ReadAttempts is the first try plus one retry.
	ReadAttempts = 2

	msgStoreUnavailable = "service temporarily unavailable"
)

// Read runs fn with a per-attempt timeout and retries once. Not-found results
// and cancellation of the caller's context are returned as-is without a
// retry. When every attempt fails the last error is wrapped in
// errors.ErrServiceUnavailable.
func Read[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < ReadAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := readOnce(ctx, timeout, fn)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
	}

	return zero, apperrors.ServiceUnavailable(msgStoreUnavailable, lastErr)
}

func readOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
