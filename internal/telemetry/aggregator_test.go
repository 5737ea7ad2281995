package telemetry

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/shopdiscovery/internal/cache"
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

func newTestAggregator(t *testing.T, clock *testClock, mutate func(*Options)) *Aggregator {
	t.Helper()
	opts := Options{
		MinSamples:   5,
		AlertLogSize: 10,
		AlertWindow:  5 * time.Minute,
		Rand:         rand.New(rand.NewPCG(1, 2)),
		Clock:        clock.Now,
		Logger:       zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	agg, err := NewAggregator(opts)
	require.NoError(t, err)
	return agg
}

func TestTimer_MeasuresWallClockSpan(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)

	timer := agg.StartTimer(ServiceRanking)
	clock.Advance(120 * time.Millisecond)
	latency := timer.End(true, SampleMeta{CacheHit: Miss()})

	assert.Equal(t, 120*time.Millisecond, latency)

	report := agg.Report(ServiceRanking)
	assert.Equal(t, int64(1), report.Count)
	assert.Equal(t, 120*time.Millisecond, report.MinLatency)
	assert.Equal(t, 120*time.Millisecond, report.MaxLatency)
	assert.Equal(t, int64(1), report.CacheMisses)

	timer.End(false, SampleMeta{})
	assert.Equal(t, int64(1), agg.Report(ServiceRanking).Count, "second End is ignored")
}

func TestAggregator_AccumulatesUntilReset(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)

	agg.Record(Sample{Service: ServiceCatalog, Latency: 10 * time.Millisecond, Success: true, CacheHit: Hit()})
	agg.Record(Sample{Service: ServiceCatalog, Latency: 30 * time.Millisecond, Success: false})
	agg.Record(Sample{Service: ServiceCatalog, Latency: 20 * time.Millisecond, Success: true, CacheHit: Miss()})

	report := agg.Report(ServiceCatalog)
	assert.Equal(t, int64(3), report.Count)
	assert.Equal(t, int64(1), report.Errors)
	assert.Equal(t, 60*time.Millisecond, report.TotalLatency)
	assert.Equal(t, 10*time.Millisecond, report.MinLatency)
	assert.Equal(t, 30*time.Millisecond, report.MaxLatency)
	assert.Equal(t, 20*time.Millisecond, report.AvgLatency)
	assert.InDelta(t, 1.0/3.0, report.ErrorRate, 1e-9)
	assert.InDelta(t, 0.5, report.CacheHitRate, 1e-9)

	agg.Reset(ServiceCatalog)
	assert.Equal(t, int64(0), agg.Report(ServiceCatalog).Count)
}

func TestAggregator_ReportUsesSnapshotPool(t *testing.T) {
	clock := newTestClock()
	snapshots := cache.NewPool(cache.PoolConfig[Metrics]{Name: cache.PoolSnapshots, TTL: time.Minute, MaxEntries: 5, Clock: clock.Now})
	agg := newTestAggregator(t, clock, func(o *Options) { o.Snapshots = snapshots })

	agg.Record(Sample{Service: ServiceRanking, Success: true})
	first := agg.Report(ServiceRanking)
	second := agg.Report(ServiceRanking)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(1), snapshots.Stats().Hits)

	agg.Record(Sample{Service: ServiceRanking, Success: true})
	assert.Equal(t, int64(2), agg.Report(ServiceRanking).Count, "new samples invalidate the snapshot")
}

func TestAggregator_NoErrorRateAlertBeforeMinSamples(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)

	agg.Record(Sample{Service: ServiceRanking, Success: false})
	assert.Empty(t, agg.Alerts(), "one failed call on a cold service must not alert")

	for i := 0; i < 4; i++ {
		agg.Record(Sample{Service: ServiceRanking, Success: false})
	}
	alerts := agg.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertHighErrorRate, alerts[0].Type)
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
	assert.NotEmpty(t, alerts[0].ID)
	assert.NotEmpty(t, alerts[0].Message)
}

func TestAggregator_LatencyAlertIsIdempotentPerWindow(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)

	for i := 0; i < 3; i++ {
		agg.Record(Sample{Service: ServiceCache, Latency: time.Second, Success: true})
	}
	require.Len(t, agg.Alerts(), 1)

	clock.Advance(5 * time.Minute)
	agg.Record(Sample{Service: ServiceCache, Latency: time.Second, Success: true})
	assert.Len(t, agg.Alerts(), 2, "a new window allows the alert again")
}

func TestAggregator_UnknownServiceUsesDefaultThresholds(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)

	agg.Record(Sample{Service: "wishlist", Latency: 4 * time.Second, Success: true})
	assert.Empty(t, agg.Alerts())

	agg.Record(Sample{Service: "wishlist", Latency: 6 * time.Second, Success: true})
	assert.Len(t, agg.Alerts(), 1)
}

func TestAggregator_AlertLogIsBounded(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, func(o *Options) { o.AlertLogSize = 3 })

	for i := 0; i < 5; i++ {
		agg.Raise(Alert{Type: AlertErrorSpike, Service: ServiceCatalog, Key: string(rune('a' + i))})
	}

	alerts := agg.Alerts()
	require.Len(t, alerts, 3)
	assert.Equal(t, "c", alerts[0].Key)
	assert.Equal(t, "e", alerts[2].Key)
}

func TestAggregator_HandlerFailuresAreSwallowed(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)

	var received []Alert
	agg.OnAlert(func(Alert) error { return errors.New("pager down") })
	agg.OnAlert(func(Alert) error { panic("bad handler") })
	agg.OnAlert(func(a Alert) error {
		received = append(received, a)
		return nil
	})

	assert.NotPanics(t, func() {
		assert.True(t, agg.Raise(Alert{Type: AlertMemoryGrowth, Service: "process"}))
	})
	require.Len(t, received, 1)
	assert.Equal(t, AlertMemoryGrowth, received[0].Type)
}

func TestAggregator_SeededMessagesAreReproducible(t *testing.T) {
	messages := func() []string {
		clock := newTestClock()
		agg := newTestAggregator(t, clock, func(o *Options) { o.Rand = rand.New(rand.NewPCG(42, 7)) })
		for i := 0; i < 4; i++ {
			agg.Raise(Alert{Type: AlertHighLatency, Service: ServiceRanking, Key: string(rune('a' + i)), Value: 2500, Threshold: 2000})
		}
		var out []string
		for _, a := range agg.Alerts() {
			out = append(out, a.Message)
		}
		return out
	}

	assert.Equal(t, messages(), messages())
}

func TestAggregator_TrimAlerts(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)

	agg.Raise(Alert{Type: AlertErrorSpike, Service: ServiceCatalog})
	clock.Advance(2 * time.Hour)
	agg.Raise(Alert{Type: AlertMemoryGrowth, Service: "process"})

	assert.Equal(t, 1, agg.TrimAlerts(time.Hour))
	alerts := agg.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMemoryGrowth, alerts[0].Type)

	assert.True(t, agg.Raise(Alert{Type: AlertErrorSpike, Service: ServiceCatalog}), "expired dedup window was forgotten")
}

func TestAggregator_Reports(t *testing.T) {
	clock := newTestClock()
	agg := newTestAggregator(t, clock, nil)
	agg.Record(Sample{Service: "b", Success: true})
	agg.Record(Sample{Service: "a", Success: true})

	reports := agg.Reports()
	require.Len(t, reports, 2)
	assert.Equal(t, "a", reports[0].Service)
	assert.Equal(t, "b", reports[1].Service)
}
