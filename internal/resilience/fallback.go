package resilience

import (
	"context"
	"fmt"

	"github.com/zatekoja/shopdiscovery/internal/infrastructure/observability"
)

// FallbackResult carries the value of whichever operation produced it.
// PrimaryError holds the primary failure message when the fallback ran.
type FallbackResult[T any] struct {
	Value        T      `json:"value"`
	FallbackUsed bool   `json:"fallback_used"`
	Degraded     bool   `json:"degraded"`
	PrimaryError string `json:"primary_error,omitempty"`
}

// WithFallback runs primary under Execute and, on any failure, runs fallback.
// A failing fallback is logged and returned wrapped; it is never swallowed.
func WithFallback[T any](ctx context.Context, e *Executor, call CallContext, primary, fallback Operation[T]) (FallbackResult[T], error) {
	v, err := Execute(ctx, e, call, primary)
	if err == nil {
		return FallbackResult[T]{Value: v}, nil
	}

	logger := observability.WithTrace(ctx, e.logger)
	logger.Warn().
		Err(err).
		Str("dependency", call.Service).
		Str("operation", call.Operation).
		Msg("primary failed, running fallback")

	fv, ferr := runFallback(ctx, fallback)
	if ferr != nil {
		logger.Error().
			Err(ferr).
			Str("dependency", call.Service).
			Str("operation", call.Operation).
			Str("primary_error", err.Error()).
			Msg("fallback failed")
		if e.tracker != nil {
			e.tracker.Track(ctx, ferr, CallContext{
				Service:   call.Service,
				Operation: call.Operation + ".fallback",
				UserID:    call.UserID,
			})
		}
		var zero FallbackResult[T]
		return zero, fmt.Errorf("fallback for %s.%s failed: %w", call.Service, call.Operation, ferr)
	}

	return FallbackResult[T]{
		Value:        fv,
		FallbackUsed: true,
		Degraded:     true,
		PrimaryError: err.Error(),
	}, nil
}

func runFallback[T any](ctx context.Context, fallback Operation[T]) (T, error) {
	out, err := invoke(ctx, fallback)
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
