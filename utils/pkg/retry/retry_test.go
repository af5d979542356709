package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return http.StatusText(int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestMintGate_Retry_Do(t *testing.T) {
	t.Parallel()

	fast := Config{MaxAttempts: 3, BaseBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}

	t.Run("first attempt success", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		require.NoError(t, Do(t.Context(), fast, func() error {
			attempts++
			return nil
		}))
		require.Equal(t, 1, attempts)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		require.NoError(t, Do(t.Context(), fast, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset")
			}
			return nil
		}))
		require.Equal(t, 3, attempts)
	})

	t.Run("exhausted attempts wrap the last error", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		cause := statusErr(http.StatusServiceUnavailable)
		err := Do(t.Context(), fast, func() error {
			attempts++
			return cause
		})
		require.ErrorIs(t, err, cause)
		require.Equal(t, 3, attempts)
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		cause := errors.New("invalid root")
		err := Do(t.Context(), fast, func() error {
			attempts++
			return cause
		})
		require.Equal(t, cause, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("cancellation stops the loop", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		attempts := 0
		err := Do(ctx, Config{MaxAttempts: 5, BaseBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}, func() error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("connection reset")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 2, attempts)
	})
}

func TestMintGate_Retry_IsRetryable(t *testing.T) {
	t.Parallel()

	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(context.Canceled))
	require.False(t, IsRetryable(context.DeadlineExceeded))
	require.False(t, IsRetryable(errors.New("invalid root")))
	require.True(t, IsRetryable(errors.New("connection reset by peer")))
	require.True(t, IsRetryable(errors.New("read tcp: i/o timeout")))

	for _, code := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	} {
		require.True(t, IsRetryable(statusErr(code)), "status %d", code)
	}
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound} {
		require.False(t, IsRetryable(statusErr(code)), "status %d", code)
	}
}
