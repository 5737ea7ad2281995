// Package telemetry aggregates per-service latency and outcome samples and
// raises threshold alerts.
package telemetry

import "time"

// Service categories with their own thresholds.
const (
	ServiceRanking  = "ranking"
	ServiceCatalog  = "catalog"
	ServiceCache    = "cache"
	ServiceAlerting = "alerting"
	ServiceDefault  = "default"
)

// ServiceAPI groups HTTP request samples. It has no thresholds of its own.
const ServiceAPI = "api"

// AlertType identifies what kind of condition an alert reports.
type AlertType string

const (
	AlertHighLatency   AlertType = "high_latency"
	AlertHighErrorRate AlertType = "high_error_rate"
	AlertErrorSpike    AlertType = "error_spike"
	AlertMemoryGrowth  AlertType = "memory_growth"
)

// Severity ranks alerts and error records.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Sample is a single timed call outcome.
type Sample struct {
	Service   string
	Latency   time.Duration
	Success   bool
	CacheHit  *bool
	Timestamp time.Time
}

// SampleMeta carries optional details for Timer.End.
type SampleMeta struct {
	CacheHit *bool
}

// Hit marks a sample as served from cache.
func Hit() *bool {
	v := true
	return &v
}

// Miss marks a sample as a cache miss.
func Miss() *bool {
	v := false
	return &v
}

// Thresholds bound acceptable behaviour for one service category.
type Thresholds struct {
	MaxLatency   time.Duration
	MaxErrorRate float64
}

// DefaultThresholds returns the built-in threshold table.
func DefaultThresholds() map[string]Thresholds {
	return map[string]Thresholds{
		ServiceRanking:  {MaxLatency: 2 * time.Second, MaxErrorRate: 0.10},
		ServiceCatalog:  {MaxLatency: 3 * time.Second, MaxErrorRate: 0.10},
		ServiceCache:    {MaxLatency: 100 * time.Millisecond, MaxErrorRate: 0.01},
		ServiceAlerting: {MaxLatency: time.Second, MaxErrorRate: 0.05},
		ServiceDefault:  {MaxLatency: 5 * time.Second, MaxErrorRate: 0.20},
	}
}

// Metrics is the accumulated view of one service. Counters only grow until Reset.
type Metrics struct {
	Service      string        `json:"service"`
	Count        int64         `json:"count"`
	Errors       int64         `json:"errors"`
	CacheHits    int64         `json:"cache_hits"`
	CacheMisses  int64         `json:"cache_misses"`
	TotalLatency time.Duration `json:"total_latency"`
	MinLatency   time.Duration `json:"min_latency"`
	MaxLatency   time.Duration `json:"max_latency"`
	AvgLatency   time.Duration `json:"avg_latency"`
	ErrorRate    float64       `json:"error_rate"`
	CacheHitRate float64       `json:"cache_hit_rate"`
	LastSampleAt time.Time     `json:"last_sample_at"`
}

// Alert is an entry in the rolling alert log. Key further narrows
// deduplication, e.g. to an error fingerprint.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Service   string    `json:"service"`
	Key       string    `json:"key,omitempty"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

func (a Alert) dedupKey() string {
	return string(a.Type) + "|" + a.Service + "|" + a.Key
}

// AlertHandler receives alerts synchronously. Returned errors are logged and dropped.
type AlertHandler func(Alert) error
