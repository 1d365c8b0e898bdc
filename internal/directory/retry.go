package directory

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior of remote calls.
type RetryOptions struct {
	Timeout         time.Duration // Deadline of a single attempt, zero for none
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryOptions returns the options used when nothing is configured.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		Timeout:         30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxRetries:      5,
	}
}

// WithDefaults fills every zero field from DefaultRetryOptions.
func (o RetryOptions) WithDefaults() RetryOptions {
	def := DefaultRetryOptions()

	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = def.InitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = def.MaxInterval
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = def.MaxRetries
	}

	return o
}

// IsRetryable reports whether a failed attempt should be repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Do executes op with exponential backoff. Every attempt gets its own timeout
// derived from ctx. Only ErrTransient failures and attempts that ran out of
// time are retried; the last error is returned once retries are exhausted.
func Do[T any](ctx context.Context, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(0),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	err := backoff.Retry(func() error {
		attemptCtx, cancel := attemptContext(ctx, opts.Timeout)
		defer cancel()

		var err error

		result, err = op(attemptCtx)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		if IsRetryable(err) || (errors.Is(err, context.DeadlineExceeded) && attemptCtx.Err() != nil) {
			return err
		}

		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))

	return result, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, opts RetryOptions, op func(context.Context) error) error {
	_, err := Do(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}

func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
