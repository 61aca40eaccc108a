package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "agency-platform/pkg/errors"
)

func TestRead_RetriesOnceThenSucceeds(t *testing.T) {
	calls := 0
	v, err := Read(context.Background(), time.Second, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestRead_SecondFailureIsServiceUnavailable(t *testing.T) {
	calls := 0
	boom := errors.New("connection refused")
	_, err := Read(context.Background(), time.Second, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.Equal(t, ReadAttempts, calls)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestRead_AttemptTimeoutIsRetried(t *testing.T) {
	calls := 0
	_, err := Read(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRead_NotFoundIsNotRetried(t *testing.T) {
	calls := 0
	_, err := Read(context.Background(), time.Second, func(context.Context) (int, error) {
		calls++
		return 0, apperrors.NotFound("user not found")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrServiceUnavailable)
}

func TestRead_CallerCancellationStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Read(ctx, time.Second, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("interrupted")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrServiceUnavailable)
}
