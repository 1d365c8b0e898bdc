package directory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/robalyx/guardian/internal/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryOptions() directory.RetryOptions {
	return directory.RetryOptions{
		Timeout:         50 * time.Millisecond,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	errRateLimited := fmt.Errorf("429: %w", directory.ErrTransient)

	tests := []struct {
		name          string
		failures      []error
		expectedCalls int
		expectedErr   error
	}{
		{
			name:          "succeeds first try",
			expectedCalls: 1,
		},
		{
			name:          "retries transient failures",
			failures:      []error{errRateLimited, errRateLimited},
			expectedCalls: 3,
		},
		{
			name:          "gives up after max retries",
			failures:      []error{errRateLimited, errRateLimited, errRateLimited, errRateLimited, errRateLimited},
			expectedCalls: 4,
			expectedErr:   directory.ErrTransient,
		},
		{
			name:          "permission failure is not retried",
			failures:      []error{fmt.Errorf("403: %w", directory.ErrPermission)},
			expectedCalls: 1,
			expectedErr:   directory.ErrPermission,
		},
		{
			name:          "not found is not retried",
			failures:      []error{fmt.Errorf("404: %w", directory.ErrNotFound)},
			expectedCalls: 1,
			expectedErr:   directory.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			result, err := directory.Do(t.Context(), testRetryOptions(), func(context.Context) (string, error) {
				calls++
				if calls <= len(tt.failures) {
					return "", tt.failures[calls-1]
				}

				return "ok", nil
			})

			assert.Equal(t, tt.expectedCalls, calls)

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "ok", result)
		})
	}
}

func TestDoRetriesAttemptTimeout(t *testing.T) {
	t.Parallel()

	calls := 0
	err := directory.Run(t.Context(), testRetryOptions(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoStopsWhenParentCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	calls := 0
	err := directory.Run(ctx, testRetryOptions(), func(context.Context) error {
		calls++
		cancel()

		return directory.ErrTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, directory.IsRetryable(fmt.Errorf("wrapped: %w", directory.ErrTransient)))
	assert.False(t, directory.IsRetryable(directory.ErrPermission))
	assert.False(t, directory.IsRetryable(errors.New("boom")))
}

func TestRetryOptionsWithDefaults(t *testing.T) {
	t.Parallel()

	def := directory.DefaultRetryOptions()

	tests := []struct {
		name     string
		opts     directory.RetryOptions
		expected directory.RetryOptions
	}{
		{name: "empty", opts: directory.RetryOptions{}, expected: def},
		{
			name: "partial",
			opts: directory.RetryOptions{Timeout: time.Second, MaxRetries: 2},
			expected: directory.RetryOptions{
				Timeout:         time.Second,
				InitialInterval: def.InitialInterval,
				MaxInterval:     def.MaxInterval,
				MaxRetries:      2,
			},
		},
		{name: "complete", opts: testRetryOptions(), expected: testRetryOptions()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.opts.WithDefaults())
		})
	}
}
