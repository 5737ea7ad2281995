package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/shopdiscovery/internal/domain/providers"
)

const (
	snapshotKeyPrefix = "telemetry:snapshot:"
	alertsKey         = "telemetry:alerts"
	publishedAlerts   = 20
)

// SnapshotPublisher pushes aggregator reports to a shared cache so dashboards
// and sibling processes can read them.
type SnapshotPublisher struct {
	agg    *Aggregator
	store  providers.CacheProvider
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSnapshotPublisher creates a publisher. Published keys expire after ttl.
func NewSnapshotPublisher(agg *Aggregator, store providers.CacheProvider, ttl time.Duration, logger zerolog.Logger) *SnapshotPublisher {
	if ttl < time.Second {
		ttl = time.Minute
	}
	return &SnapshotPublisher{
		agg:    agg,
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "snapshot_publisher").Logger(),
	}
}

// SnapshotKey is the shared-cache key holding the report of service.
func SnapshotKey(service string) string {
	return snapshotKeyPrefix + service
}

// Publish writes every service report and the most recent alerts. It keeps
// going past individual write failures and returns the first one.
func (p *SnapshotPublisher) Publish(ctx context.Context) error {
	expiration := int(p.ttl / time.Second)
	var firstErr error

	for _, report := range p.agg.Reports() {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report %s: %w", report.Service, err)
		}
		if err := p.store.Set(ctx, SnapshotKey(report.Service), data, expiration); err != nil {
			p.logger.Warn().Err(err).Str("report_service", report.Service).Msg("failed to publish snapshot")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	alerts := p.agg.Alerts()
	if len(alerts) > publishedAlerts {
		alerts = alerts[len(alerts)-publishedAlerts:]
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}
	if err := p.store.Set(ctx, alertsKey, data, expiration); err != nil {
		p.logger.Warn().Err(err).Msg("failed to publish alerts")
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadSnapshot loads a previously published report.
func (p *SnapshotPublisher) ReadSnapshot(ctx context.Context, service string) (Metrics, error) {
	var m Metrics
	data, err := p.store.Get(ctx, SnapshotKey(service))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode snapshot %s: %w", service, err)
	}
	return m, nil
}

// Clear removes every published snapshot.
func (p *SnapshotPublisher) Clear(ctx context.Context) error {
	return p.store.DeletePattern(ctx, snapshotKeyPrefix+"*")
}

// Run publishes on every tick until ctx is done.
func (p *SnapshotPublisher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.Publish(publishCtx); err != nil {
				p.logger.Debug().Err(err).Msg("snapshot publish incomplete")
			}
			cancel()
		}
	}
}
