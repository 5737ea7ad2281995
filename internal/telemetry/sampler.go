package telemetry

import (
	"context"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ResourceSample is one snapshot of process resource usage.
type ResourceSample struct {
	Timestamp  time.Time `json:"timestamp"`
	HeapBytes  uint64    `json:"heap_bytes"`
	CPUSeconds float64   `json:"cpu_seconds"`
}

// Probe captures the current resource usage.
type Probe func() ResourceSample

const (
	heapObjectsMetric = "/memory/classes/heap/objects:bytes"
	cpuTotalMetric    = "/cpu/classes/total:cpu-seconds"
)

// RuntimeProbe reads heap and cumulative CPU time from the Go runtime.
func RuntimeProbe() ResourceSample {
	samples := []metrics.Sample{
		{Name: heapObjectsMetric},
		{Name: cpuTotalMetric},
	}
	metrics.Read(samples)

	rs := ResourceSample{Timestamp: time.Now()}
	if samples[0].Value.Kind() == metrics.KindUint64 {
		rs.HeapBytes = samples[0].Value.Uint64()
	}
	if samples[1].Value.Kind() == metrics.KindFloat64 {
		rs.CPUSeconds = samples[1].Value.Float64()
	}
	return rs
}

// SamplerOptions configures a Sampler. Window is the number of samples per
// comparison window; GrowthRatio is the recent/prior average ratio that counts
// as sustained growth.
type SamplerOptions struct {
	Probe          Probe
	Window         int
	GrowthRatio    float64
	Interval       time.Duration
	TrimInterval   time.Duration
	AlertRetention time.Duration
	Logger         zerolog.Logger
}

// Sampler periodically captures resource usage into a bounded rolling window
// and raises memory_growth alerts. It shares no lock with request-path code.
type Sampler struct {
	agg  *Aggregator
	opts SamplerOptions

	mu      sync.Mutex
	samples []ResourceSample
}

// NewSampler creates a sampler feeding alerts into agg.
func NewSampler(agg *Aggregator, opts SamplerOptions) *Sampler {
	if opts.Probe == nil {
		opts.Probe = RuntimeProbe
	}
	if opts.Window <= 0 {
		opts.Window = 10
	}
	if opts.GrowthRatio <= 1 {
		opts.GrowthRatio = 1.2
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.TrimInterval <= 0 {
		opts.TrimInterval = 5 * time.Minute
	}
	if opts.AlertRetention <= 0 {
		opts.AlertRetention = 24 * time.Hour
	}
	opts.Logger = opts.Logger.With().Str("component", "sampler").Logger()
	return &Sampler{agg: agg, opts: opts}
}

// Sample captures one resource snapshot and checks for memory drift.
func (s *Sampler) Sample() ResourceSample {
	rs := s.opts.Probe()

	s.mu.Lock()
	s.samples = append(s.samples, rs)
	if over := len(s.samples) - 2*s.opts.Window; over > 0 {
		s.samples = append([]ResourceSample(nil), s.samples[over:]...)
	}
	prior, recent, ready := s.windowAverages()
	s.mu.Unlock()

	if ready && prior > 0 && recent > prior*s.opts.GrowthRatio {
		s.agg.Raise(Alert{
			Type:      AlertMemoryGrowth,
			Service:   "process",
			Severity:  SeverityHigh,
			Value:     recent / prior,
			Threshold: s.opts.GrowthRatio,
		})
	}
	return rs
}

// windowAverages compares the latest window with the one before it; caller holds mu.
func (s *Sampler) windowAverages() (prior, recent float64, ready bool) {
	w := s.opts.Window
	if len(s.samples) < 2*w {
		return 0, 0, false
	}
	for i, rs := range s.samples {
		if i < w {
			prior += float64(rs.HeapBytes)
		} else {
			recent += float64(rs.HeapBytes)
		}
	}
	return prior / float64(w), recent / float64(w), true
}

// Samples returns a copy of the rolling window, oldest first.
func (s *Sampler) Samples() []ResourceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ResourceSample(nil), s.samples...)
}

// Run samples and trims the alert log on independent tickers until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	sample := time.NewTicker(s.opts.Interval)
	defer sample.Stop()
	trim := time.NewTicker(s.opts.TrimInterval)
	defer trim.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sample.C:
			rs := s.Sample()
			s.opts.Logger.Debug().
				Uint64("heap_bytes", rs.HeapBytes).
				Float64("cpu_seconds", rs.CPUSeconds).
				Msg("resource sample")
		case <-trim.C:
			if removed := s.agg.TrimAlerts(s.opts.AlertRetention); removed > 0 {
				s.opts.Logger.Debug().Int("removed", removed).Msg("alert log trimmed")
			}
		}
	}
}
