package telemetry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/zatekoja/shopdiscovery/internal/cache"
)

// Options configures an Aggregator. MinSamples is the sample count below which
// error rates are not evaluated. Snapshots caches computed reports; nil
// disables snapshot caching.
type Options struct {
	Thresholds   map[string]Thresholds
	MinSamples   int
	AlertLogSize int
	AlertWindow  time.Duration
	Snapshots    *cache.Pool[Metrics]
	Meter        metric.Meter
	Rand         *rand.Rand
	Clock        func() time.Time
	Logger       zerolog.Logger
}

type instruments struct {
	requests    metric.Int64Counter
	duration    metric.Float64Histogram
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	alerts      metric.Int64Counter
}

// Aggregator accumulates samples per service and raises alerts.
type Aggregator struct {
	thresholds   map[string]Thresholds
	minSamples   int
	alertLogSize int
	alertWindow  time.Duration
	snapshots    *cache.Pool[Metrics]
	now          func() time.Time
	logger       zerolog.Logger
	inst         instruments

	mu      sync.Mutex
	metrics map[string]*Metrics

	alertMu   sync.Mutex
	alerts    []Alert
	lastFired map[string]time.Time
	rng       *rand.Rand
	handlers  []AlertHandler
}

// NewAggregator creates an aggregator with defaults applied for zero options.
func NewAggregator(opts Options) (*Aggregator, error) {
	if opts.Thresholds == nil {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 10
	}
	if opts.AlertLogSize <= 0 {
		opts.AlertLogSize = 100
	}
	if opts.AlertWindow <= 0 {
		opts.AlertWindow = 5 * time.Minute
	}
	if opts.Meter == nil {
		opts.Meter = noop.NewMeterProvider().Meter("telemetry")
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	inst, err := newInstruments(opts.Meter)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		thresholds:   opts.Thresholds,
		minSamples:   opts.MinSamples,
		alertLogSize: opts.AlertLogSize,
		alertWindow:  opts.AlertWindow,
		snapshots:    opts.Snapshots,
		now:          opts.Clock,
		logger:       opts.Logger.With().Str("component", "telemetry").Logger(),
		inst:         inst,
		metrics:      make(map[string]*Metrics),
		lastFired:    make(map[string]time.Time),
		rng:          opts.Rand,
	}, nil
}

func newInstruments(meter metric.Meter) (instruments, error) {
	var inst instruments
	var err error

	if inst.requests, err = meter.Int64Counter(
		"shopcore.request.count",
		metric.WithDescription("Number of timed calls per service"),
	); err != nil {
		return inst, err
	}
	if inst.duration, err = meter.Float64Histogram(
		"shopcore.request.duration",
		metric.WithDescription("Call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return inst, err
	}
	if inst.cacheHits, err = meter.Int64Counter(
		"shopcore.cache.hit.count",
		metric.WithDescription("Number of cache hits"),
	); err != nil {
		return inst, err
	}
	if inst.cacheMisses, err = meter.Int64Counter(
		"shopcore.cache.miss.count",
		metric.WithDescription("Number of cache misses"),
	); err != nil {
		return inst, err
	}
	if inst.alerts, err = meter.Int64Counter(
		"shopcore.alert.count",
		metric.WithDescription("Number of alerts raised"),
	); err != nil {
		return inst, err
	}
	return inst, nil
}

// Timer measures one call. End may be called once; later calls are ignored.
type Timer struct {
	agg     *Aggregator
	service string
	start   time.Time
	ended   atomic.Bool
}

// StartTimer begins timing a call against service.
func (a *Aggregator) StartTimer(service string) *Timer {
	return &Timer{agg: a, service: service, start: a.now()}
}

// End records the outcome and returns the measured latency.
func (t *Timer) End(success bool, meta SampleMeta) time.Duration {
	latency := t.agg.now().Sub(t.start)
	if !t.ended.CompareAndSwap(false, true) {
		return latency
	}
	t.agg.Record(Sample{
		Service:   t.service,
		Latency:   latency,
		Success:   success,
		CacheHit:  meta.CacheHit,
		Timestamp: t.start.Add(latency),
	})
	return latency
}

// Record folds a sample into its service metrics and evaluates thresholds.
func (a *Aggregator) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = a.now()
	}

	a.mu.Lock()
	m, ok := a.metrics[s.Service]
	if !ok {
		m = &Metrics{Service: s.Service}
		a.metrics[s.Service] = m
	}
	m.Count++
	m.TotalLatency += s.Latency
	if m.Count == 1 || s.Latency < m.MinLatency {
		m.MinLatency = s.Latency
	}
	if s.Latency > m.MaxLatency {
		m.MaxLatency = s.Latency
	}
	if !s.Success {
		m.Errors++
	}
	if s.CacheHit != nil {
		if *s.CacheHit {
			m.CacheHits++
		} else {
			m.CacheMisses++
		}
	}
	m.LastSampleAt = s.Timestamp
	snapshot := finalize(*m)
	if a.snapshots != nil {
		a.snapshots.Invalidate(snapshotKey(s.Service))
	}
	a.mu.Unlock()

	a.mirror(s)
	a.evaluate(snapshot, s)
}

func (a *Aggregator) mirror(s Sample) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("service", s.Service),
		attribute.Bool("success", s.Success),
	)
	a.inst.requests.Add(ctx, 1, attrs)
	a.inst.duration.Record(ctx, float64(s.Latency)/float64(time.Millisecond), attrs)
	if s.CacheHit != nil {
		svc := metric.WithAttributes(attribute.String("service", s.Service))
		if *s.CacheHit {
			a.inst.cacheHits.Add(ctx, 1, svc)
		} else {
			a.inst.cacheMisses.Add(ctx, 1, svc)
		}
	}
}

func (a *Aggregator) evaluate(m Metrics, s Sample) {
	th := a.thresholdsFor(s.Service)

	if th.MaxLatency > 0 && s.Latency > th.MaxLatency {
		a.Raise(Alert{
			Type:      AlertHighLatency,
			Service:   s.Service,
			Severity:  SeverityMedium,
			Value:     float64(s.Latency.Milliseconds()),
			Threshold: float64(th.MaxLatency.Milliseconds()),
		})
	}

	// A single failure on a cold service would read as a 100% error rate.
	if m.Count < int64(a.minSamples) {
		return
	}
	if th.MaxErrorRate > 0 && m.ErrorRate > th.MaxErrorRate {
		a.Raise(Alert{
			Type:      AlertHighErrorRate,
			Service:   s.Service,
			Severity:  SeverityHigh,
			Value:     m.ErrorRate,
			Threshold: th.MaxErrorRate,
		})
	}
}

func (a *Aggregator) thresholdsFor(service string) Thresholds {
	if th, ok := a.thresholds[service]; ok {
		return th
	}
	return a.thresholds[ServiceDefault]
}

// Report returns the metrics for one service, served from the snapshot pool
// when a fresh snapshot exists.
func (a *Aggregator) Report(service string) Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := snapshotKey(service)
	if a.snapshots != nil {
		if m, ok := a.snapshots.Get(key); ok {
			return m
		}
	}

	m, ok := a.metrics[service]
	if !ok {
		return Metrics{Service: service}
	}
	report := finalize(*m)
	if a.snapshots != nil {
		a.snapshots.Set(key, report)
	}
	return report
}

// Reports returns metrics for every service ordered by name.
func (a *Aggregator) Reports() []Metrics {
	a.mu.Lock()
	services := make([]string, 0, len(a.metrics))
	for name := range a.metrics {
		services = append(services, name)
	}
	a.mu.Unlock()

	sort.Strings(services)
	reports := make([]Metrics, 0, len(services))
	for _, name := range services {
		reports = append(reports, a.Report(name))
	}
	return reports
}

// Reset clears the accumulated metrics of a service.
func (a *Aggregator) Reset(service string) {
	a.mu.Lock()
	delete(a.metrics, service)
	if a.snapshots != nil {
		a.snapshots.Invalidate(snapshotKey(service))
	}
	a.mu.Unlock()
}

// OnAlert registers a handler invoked for every alert that is not deduplicated.
func (a *Aggregator) OnAlert(h AlertHandler) {
	a.alertMu.Lock()
	a.handlers = append(a.handlers, h)
	a.alertMu.Unlock()
}

// Raise appends an alert to the log and notifies handlers, unless an alert with
// the same type, service and key already fired within the alert window. It
// reports whether the alert was emitted.
func (a *Aggregator) Raise(alert Alert) bool {
	now := a.now()
	if alert.Timestamp.IsZero() {
		alert.Timestamp = now
	}
	if alert.Severity == "" {
		alert.Severity = SeverityMedium
	}

	a.alertMu.Lock()
	key := alert.dedupKey()
	if last, ok := a.lastFired[key]; ok && alert.Timestamp.Sub(last) < a.alertWindow {
		a.alertMu.Unlock()
		return false
	}
	a.lastFired[key] = alert.Timestamp

	alert.ID = uuid.NewString()
	if alert.Message == "" {
		alert.Message = a.describe(alert)
	}
	a.alerts = append(a.alerts, alert)
	if over := len(a.alerts) - a.alertLogSize; over > 0 {
		a.alerts = append([]Alert(nil), a.alerts[over:]...)
	}
	handlers := append([]AlertHandler(nil), a.handlers...)
	a.alertMu.Unlock()

	a.inst.alerts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", string(alert.Type)),
		attribute.String("service", alert.Service),
	))
	a.logger.Warn().
		Str("alert_id", alert.ID).
		Str("alert_type", string(alert.Type)).
		Str("alert_service", alert.Service).
		Str("severity", string(alert.Severity)).
		Float64("value", alert.Value).
		Float64("threshold", alert.Threshold).
		Msg(alert.Message)

	for _, h := range handlers {
		a.notify(h, alert)
	}
	return true
}

func (a *Aggregator) notify(h AlertHandler, alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Str("alert_id", alert.ID).Msg("alert handler panicked")
		}
	}()
	if err := h(alert); err != nil {
		a.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("alert handler failed")
	}
}

// Alerts returns a copy of the rolling alert log, oldest first.
func (a *Aggregator) Alerts() []Alert {
	a.alertMu.Lock()
	defer a.alertMu.Unlock()
	return append([]Alert(nil), a.alerts...)
}

// TrimAlerts drops alerts older than retention and forgets expired dedup windows.
func (a *Aggregator) TrimAlerts(retention time.Duration) int {
	now := a.now()
	a.alertMu.Lock()
	defer a.alertMu.Unlock()

	kept := a.alerts[:0]
	for _, alert := range a.alerts {
		if now.Sub(alert.Timestamp) < retention {
			kept = append(kept, alert)
		}
	}
	removed := len(a.alerts) - len(kept)
	a.alerts = kept

	for key, fired := range a.lastFired {
		if now.Sub(fired) >= a.alertWindow {
			delete(a.lastFired, key)
		}
	}
	return removed
}

var alertTemplates = map[AlertType][]string{
	AlertHighLatency: {
		"%s latency %.0fms exceeded threshold %.0fms",
		"slow responses from %s: %.0fms (limit %.0fms)",
	},
	AlertHighErrorRate: {
		"%s error rate %.2f above threshold %.2f",
		"%s is failing too often: %.2f (limit %.2f)",
	},
	AlertErrorSpike: {
		"%s error spike: %.0f occurrences (limit %.0f)",
		"repeated failures in %s: %.0f in window (limit %.0f)",
	},
	AlertMemoryGrowth: {
		"%s memory grew %.2fx over the previous window (limit %.2fx)",
		"sustained memory growth in %s: %.2fx (limit %.2fx)",
	},
}

// describe picks a message template; caller holds alertMu.
func (a *Aggregator) describe(alert Alert) string {
	templates := alertTemplates[alert.Type]
	if len(templates) == 0 {
		return fmt.Sprintf("%s alert for %s", alert.Type, alert.Service)
	}
	tmpl := templates[a.rng.IntN(len(templates))]
	return fmt.Sprintf(tmpl, alert.Service, alert.Value, alert.Threshold)
}

func finalize(m Metrics) Metrics {
	if m.Count > 0 {
		m.AvgLatency = m.TotalLatency / time.Duration(m.Count)
		m.ErrorRate = float64(m.Errors) / float64(m.Count)
	}
	if lookups := m.CacheHits + m.CacheMisses; lookups > 0 {
		m.CacheHitRate = float64(m.CacheHits) / float64(lookups)
	}
	return m
}

func snapshotKey(service string) string {
	return "report:" + service
}
