package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestAggregator(t *testing.T, clock *testClock) *telemetry.Aggregator {
	t.Helper()
	agg, err := telemetry.NewAggregator(telemetry.Options{Clock: clock.Now, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return agg
}

func failing(calls *int, err error) Operation[string] {
	return func(context.Context) (string, error) {
		*calls++
		return "", err
	}
}

func TestExecute_OpensAfterThresholdAndFailsFast(t *testing.T) {
	exec := NewExecutor(ExecutorOptions{FailureThreshold: 3, ResetTimeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	call := CallContext{Service: telemetry.ServiceCatalog, Operation: "list"}
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		_, err := Execute(ctx, exec, call, failing(&calls, errors.New("connection reset")))
		require.Error(t, err)
	}
	require.Equal(t, 3, calls)

	snap := exec.BreakerSnapshot(telemetry.ServiceCatalog)
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.NotNil(t, snap.LastFailureAt)
	assert.NotNil(t, snap.ReopenAt)

	_, err := Execute(ctx, exec, call, failing(&calls, errors.New("connection reset")))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCircuitOpen))
	assert.Equal(t, 3, calls, "open breaker must not invoke the operation")

	time.Sleep(80 * time.Millisecond)

	v, err := Execute(ctx, exec, call, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 4, calls)

	snap = exec.BreakerSnapshot(telemetry.ServiceCatalog)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Nil(t, snap.ReopenAt)
}

func TestExecute_ReopenAtFollowsWallClock(t *testing.T) {
	clock := newTestClock()
	exec := NewExecutor(ExecutorOptions{FailureThreshold: 1, ResetTimeout: time.Minute, Clock: clock.Now, Logger: zerolog.Nop()})
	call := CallContext{Service: telemetry.ServiceCatalog, Operation: "list"}

	calls := 0
	before := time.Now()
	_, err := Execute(context.Background(), exec, call, failing(&calls, errors.New("connection reset")))
	require.Error(t, err)

	snap := exec.BreakerSnapshot(telemetry.ServiceCatalog)
	require.Equal(t, StateOpen, snap.State)
	require.NotNil(t, snap.ReopenAt)
	assert.WithinDuration(t, before.Add(time.Minute), *snap.ReopenAt, 5*time.Second)
	require.NotNil(t, snap.LastFailureAt)
	assert.Equal(t, clock.Now(), *snap.LastFailureAt)
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	exec := NewExecutor(ExecutorOptions{FailureThreshold: 1, ResetTimeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	call := CallContext{Service: "payments", Operation: "quote"}
	ctx := context.Background()

	calls := 0
	_, _ = Execute(ctx, exec, call, failing(&calls, errors.New("timeout")))
	assert.Equal(t, StateOpen, exec.BreakerSnapshot("payments").State)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, exec.BreakerSnapshot("payments").State)

	_, err := Execute(ctx, exec, call, failing(&calls, errors.New("timeout")))
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateOpen, exec.BreakerSnapshot("payments").State)
}

func TestExecute_BreakersAreIndependent(t *testing.T) {
	exec := NewExecutor(ExecutorOptions{FailureThreshold: 1, ResetTimeout: time.Minute, Logger: zerolog.Nop()})
	ctx := context.Background()

	calls := 0
	_, _ = Execute(ctx, exec, CallContext{Service: "a"}, failing(&calls, errors.New("boom")))

	v, err := Execute(ctx, exec, CallContext{Service: "b"}, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	states := exec.Breakers()
	require.Len(t, states, 2)
	assert.Equal(t, "a", states[0].Name)
	assert.Equal(t, StateOpen, states[0].State)
	assert.Equal(t, StateClosed, states[1].State)
}

func TestExecute_PanicBecomesProgrammingError(t *testing.T) {
	exec := NewExecutor(ExecutorOptions{Logger: zerolog.Nop()})

	_, err := Execute(context.Background(), exec, CallContext{Service: "ranking"}, func(context.Context) (*int, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.KindProgramming, apperrors.Classify(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestExecute_RecordsTelemetry(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock)
	exec := NewExecutor(ExecutorOptions{Telemetry: agg, Logger: zerolog.Nop()})
	call := CallContext{Service: telemetry.ServiceRanking, Operation: "search"}

	_, err := Execute(context.Background(), exec, call, func(ctx context.Context) (string, error) {
		telemetry.MarkCacheHit(ctx, true)
		clock.Advance(15 * time.Millisecond)
		return "hit", nil
	})
	require.NoError(t, err)

	calls := 0
	_, err = Execute(context.Background(), exec, call, failing(&calls, errors.New("boom")))
	require.Error(t, err)

	report := agg.Report(telemetry.ServiceRanking)
	assert.Equal(t, int64(2), report.Count)
	assert.Equal(t, int64(1), report.Errors)
	assert.Equal(t, int64(1), report.CacheHits)
	assert.Equal(t, 15*time.Millisecond, report.MaxLatency)
}

func TestExecute_TracksFailures(t *testing.T) {
	clock := newTestClock()
	tracker := NewErrorTracker(TrackerOptions{Clock: clock.Now, Logger: zerolog.Nop()})
	exec := NewExecutor(ExecutorOptions{Tracker: tracker, Logger: zerolog.Nop()})

	calls := 0
	_, _ = Execute(context.Background(), exec, CallContext{Service: "catalog", Operation: "list", UserID: "u-1"},
		failing(&calls, apperrors.NewValidationError("empty query")))

	recent := tracker.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, apperrors.KindValidation, recent[0].Kind)
	assert.Equal(t, telemetry.SeverityLow, recent[0].Severity)
	assert.Equal(t, "u-1", recent[0].Context.UserID)
}
