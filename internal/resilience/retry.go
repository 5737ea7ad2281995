package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
	"github.com/zatekoja/shopdiscovery/pkg/retry"
)

// RetryOptions configures WithRetry. MaxRetries is the total number of
// invocations; delays grow as BaseDelay * BackoffMultiplier^(attempt-1).
type RetryOptions struct {
	Name              string
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	Logger            *zerolog.Logger
}

// DefaultRetryOptions returns three attempts starting at one second.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          10 * time.Second,
	}
}

func (o RetryOptions) config() retry.Config {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 1
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = 1
	}
	return retry.Config{
		MaxAttempts:   o.MaxRetries,
		InitialDelay:  o.BaseDelay,
		MaxDelay:      o.MaxDelay,
		BackoffFactor: o.BackoffMultiplier,
		Retryable:     apperrors.IsRetryable,
	}
}

// WithRetry wraps op so that retryable failures are attempted again with
// exponential backoff. Validation, auth, not-found, circuit-open and
// programming errors are returned on the first occurrence. When attempts run
// out the last error is returned.
func WithRetry[T any](op Operation[T], opts RetryOptions) Operation[T] {
	cfg := opts.config()

	var logFn func(int, error, time.Duration)
	if opts.Logger != nil {
		logger := opts.Logger
		logFn = func(attempt int, err error, next time.Duration) {
			logger.Debug().
				Err(err).
				Str("operation", opts.Name).
				Int("attempt", attempt).
				Dur("next_delay", next).
				Msg("retrying operation")
		}
	}

	return func(ctx context.Context) (T, error) {
		var last error
		v, err := retry.DoValue(ctx, cfg, opts.Name, func(ctx context.Context) (T, error) {
			v, err := op(ctx)
			if err != nil {
				last = err
			}
			return v, err
		}, logFn)
		if err != nil && last != nil && errors.Is(err, last) {
			return v, last
		}
		return v, err
	}
}
