// Package resilience guards calls to slow or failing dependencies with circuit
// breakers, retries with backoff and fallbacks.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/shopdiscovery/internal/infrastructure/observability"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

// Operation is a unit of work guarded by the executor.
type Operation[T any] func(ctx context.Context) (T, error)

// CallContext describes who is calling what. Service names the dependency and
// selects its breaker.
type CallContext struct {
	Service   string `json:"service"`
	Operation string `json:"operation"`
	UserID    string `json:"user_id,omitempty"`
}

// State is the position of a breaker in its cycle.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// BreakerState is a point-in-time view of one dependency's breaker.
type BreakerState struct {
	Name                string     `json:"name"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailureThreshold    int        `json:"failure_threshold"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	ReopenAt            *time.Time `json:"reopen_at,omitempty"`
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	Telemetry        *telemetry.Aggregator
	Tracker          *ErrorTracker
	Clock            func() time.Time
	Logger           zerolog.Logger
}

// Executor owns one circuit breaker per dependency name.
type Executor struct {
	threshold    int
	resetTimeout time.Duration
	telemetry    *telemetry.Aggregator
	tracker      *ErrorTracker
	now          func() time.Time
	logger       zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

type breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]

	mu            sync.Mutex
	failures      int
	lastFailureAt time.Time
	reopenAt      time.Time
}

// NewExecutor creates an executor. Telemetry and Tracker are optional.
func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Executor{
		threshold:    opts.FailureThreshold,
		resetTimeout: opts.ResetTimeout,
		telemetry:    opts.Telemetry,
		tracker:      opts.Tracker,
		now:          opts.Clock,
		logger:       opts.Logger.With().Str("component", "resilience").Logger(),
		breakers:     make(map[string]*breaker),
	}
}

func (e *Executor) breaker(name string) *breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.breakers[name]; ok {
		return b
	}

	b := &breaker{name: name}
	threshold := uint32(e.threshold)
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     e.resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.mu.Lock()
			if to == gobreaker.StateOpen {
				// gobreaker times the open interval on the wall clock.
				b.reopenAt = time.Now().Add(e.resetTimeout)
			} else {
				b.reopenAt = time.Time{}
			}
			b.mu.Unlock()

			e.logger.Warn().
				Str("dependency", name).
				Str("from", string(fromGobreaker(from))).
				Str("to", string(fromGobreaker(to))).
				Msg("circuit breaker state changed")
		},
	})
	e.breakers[name] = b
	return b
}

func (b *breaker) onSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

func (b *breaker) onFailure(at time.Time) {
	b.mu.Lock()
	b.failures++
	b.lastFailureAt = at
	b.mu.Unlock()
}

func (b *breaker) snapshot(threshold int) BreakerState {
	// State may move Open to HalfOpen and fire OnStateChange, which takes b.mu.
	state := fromGobreaker(b.cb.State())

	b.mu.Lock()
	defer b.mu.Unlock()

	s := BreakerState{
		Name:                b.name,
		State:               state,
		ConsecutiveFailures: b.failures,
		FailureThreshold:    threshold,
	}
	if !b.lastFailureAt.IsZero() {
		t := b.lastFailureAt
		s.LastFailureAt = &t
	}
	if state == StateOpen && !b.reopenAt.IsZero() {
		t := b.reopenAt
		s.ReopenAt = &t
	}
	return s
}

// BreakerSnapshot returns the state of the named breaker. Unknown names report
// a fresh closed breaker.
func (e *Executor) BreakerSnapshot(name string) BreakerState {
	return e.breaker(name).snapshot(e.threshold)
}

// Breakers returns every breaker ordered by name.
func (e *Executor) Breakers() []BreakerState {
	e.mu.Lock()
	list := make([]*breaker, 0, len(e.breakers))
	for _, b := range e.breakers {
		list = append(list, b)
	}
	e.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	out := make([]BreakerState, 0, len(list))
	for _, b := range list {
		out = append(out, b.snapshot(e.threshold))
	}
	return out
}

// Execute runs op behind the breaker of call.Service. An open breaker fails
// fast with a circuit-open error without invoking op. Failures are classified,
// tracked and returned; panics surface as programming errors.
func Execute[T any](ctx context.Context, e *Executor, call CallContext, op Operation[T]) (T, error) {
	var zero T
	if call.Service == "" {
		call.Service = telemetry.ServiceDefault
	}

	ctx, span := observability.StartSpan(ctx, fmt.Sprintf("resilience.%s.%s", call.Service, call.Operation))
	defer span.End()

	b := e.breaker(call.Service)
	ctx, readMeta := telemetry.WithSampleMeta(ctx)
	var timer *telemetry.Timer
	if e.telemetry != nil {
		timer = e.telemetry.StartTimer(call.Service)
	}

	out, err := b.cb.Execute(func() (any, error) {
		return invoke(ctx, op)
	})

	observability.SetSpanAttributes(span,
		attribute.String("resilience.dependency", call.Service),
		attribute.String("resilience.breaker_state", string(fromGobreaker(b.cb.State()))),
	)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = apperrors.NewCircuitOpenError(call.Service, err)
		} else {
			b.onFailure(e.now())
		}
		if timer != nil {
			timer.End(false, readMeta())
		}
		if e.tracker != nil {
			e.tracker.Track(ctx, err, call)
		}
		observability.RecordError(span, err)
		return zero, err
	}

	b.onSuccess()
	if timer != nil {
		timer.End(true, readMeta())
	}
	v, _ := out.(T)
	return v, nil
}

func invoke[T any](ctx context.Context, op Operation[T]) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewProgrammingError(fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return op(ctx)
}
