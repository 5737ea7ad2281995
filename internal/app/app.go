// Package app wires the query core: cache pools, telemetry, resilience and
// ranking, plus the background loops that keep them healthy.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/zatekoja/shopdiscovery/internal/adapters/catalog"
	"github.com/zatekoja/shopdiscovery/internal/application/services"
	"github.com/zatekoja/shopdiscovery/internal/cache"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/providers"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/internal/metrics"
	"github.com/zatekoja/shopdiscovery/internal/resilience"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	"github.com/zatekoja/shopdiscovery/pkg/config"
)

type options struct {
	meter  metric.Meter
	shared providers.CacheProvider
	clock  func() time.Time
	logger zerolog.Logger
	probe  telemetry.Probe
}

// Option customizes New.
type Option func(*options)

// WithMeter mirrors telemetry samples into an OpenTelemetry meter.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithSharedStore publishes telemetry snapshots to a shared cache such as Redis.
func WithSharedStore(store providers.CacheProvider) Option {
	return func(o *options) { o.shared = store }
}

// WithClock replaces time.Now for every component.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the base logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProbe replaces the runtime resource probe.
func WithProbe(probe telemetry.Probe) Option {
	return func(o *options) { o.probe = probe }
}

// Core is the assembled query core.
type Core struct {
	Cache     *cache.Manager
	Results   *cache.Pool[[]entities.SearchResult]
	Derived   *cache.Pool[services.EntityFeatures]
	Snapshots *cache.Pool[telemetry.Metrics]

	Telemetry *telemetry.Aggregator
	Sampler   *telemetry.Sampler
	Publisher *telemetry.SnapshotPublisher
	Tracker   *resilience.ErrorTracker
	Executor  *resilience.Executor

	Catalog *catalog.LastKnownGood
	Ranking *services.SearchRankingService
	Query   *services.CatalogQueryService
	Metrics *metrics.Collector

	cfg    *config.Config
	logger zerolog.Logger
}

// New assembles the core over a catalog store.
func New(cfg *config.Config, store repositories.CatalogRepository, opts ...Option) (*Core, error) {
	o := options{logger: zerolog.Nop(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	manager := cache.NewManager(o.logger)

	results, err := cache.Register(manager, cache.PoolConfig[[]entities.SearchResult]{
		Name:       cache.PoolResults,
		TTL:        cfg.Cache.ResultsTTL,
		MaxEntries: cfg.Cache.ResultsMaxEntries,
		Admit:      services.ResultsAdmission(cfg.Cache.MinConfidence),
		Clock:      o.clock,
	})
	if err != nil {
		return nil, err
	}
	derived, err := cache.Register(manager, cache.PoolConfig[services.EntityFeatures]{
		Name:       cache.PoolDerived,
		TTL:        cfg.Cache.DerivedTTL,
		MaxEntries: cfg.Cache.DerivedMaxEntries,
		Clock:      o.clock,
	})
	if err != nil {
		return nil, err
	}
	snapshots, err := cache.Register(manager, cache.PoolConfig[telemetry.Metrics]{
		Name:       cache.PoolSnapshots,
		TTL:        cfg.Cache.SnapshotTTL,
		MaxEntries: cfg.Cache.SnapshotMaxEntries,
		Clock:      o.clock,
	})
	if err != nil {
		return nil, err
	}

	agg, err := telemetry.NewAggregator(telemetry.Options{
		MinSamples:   cfg.Telemetry.MinSamples,
		AlertLogSize: cfg.Telemetry.AlertLogSize,
		AlertWindow:  cfg.Telemetry.AlertWindow,
		Snapshots:    snapshots,
		Meter:        o.meter,
		Clock:        o.clock,
		Logger:       o.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create telemetry aggregator: %w", err)
	}

	sampler := telemetry.NewSampler(agg, telemetry.SamplerOptions{
		Probe:          o.probe,
		Window:         cfg.Telemetry.ResourceWindow,
		GrowthRatio:    cfg.Telemetry.GrowthRatio,
		Interval:       cfg.Telemetry.SampleInterval,
		AlertRetention: cfg.Telemetry.AlertRetention,
		Logger:         o.logger,
	})

	tracker := resilience.NewErrorTracker(resilience.TrackerOptions{
		Alerts:           agg,
		CriticalServices: cfg.Resilience.CriticalServices,
		Clock:            o.clock,
		Logger:           o.logger,
	})

	executor := resilience.NewExecutor(resilience.ExecutorOptions{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		ResetTimeout:     cfg.Resilience.ResetTimeout,
		Telemetry:        agg,
		Tracker:          tracker,
		Clock:            o.clock,
		Logger:           o.logger,
	})

	lkg := catalog.NewLastKnownGood(store, o.logger)

	ranking := services.NewSearchRankingService(lkg, results, derived, services.RankingConfig{
		MaxResults:      cfg.Ranking.MaxResults,
		SimilarityFloor: cfg.Ranking.SimilarityFloor,
		FuzzyTrigger:    cfg.Ranking.FuzzyTrigger,
	})

	query := services.NewCatalogQueryService(ranking, executor, lkg, resilience.RetryOptions{
		MaxRetries:        cfg.Resilience.MaxRetries,
		BaseDelay:         cfg.Resilience.BaseDelay,
		BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
		MaxDelay:          cfg.Resilience.MaxDelay,
		Logger:            &o.logger,
	}, o.logger)

	core := &Core{
		Cache:     manager,
		Results:   results,
		Derived:   derived,
		Snapshots: snapshots,
		Telemetry: agg,
		Sampler:   sampler,
		Tracker:   tracker,
		Executor:  executor,
		Catalog:   lkg,
		Ranking:   ranking,
		Query:     query,
		Metrics:   metrics.NewCollector(agg, manager, executor),
		cfg:       cfg,
		logger:    o.logger.With().Str("component", "core").Logger(),
	}
	if o.shared != nil {
		core.Publisher = telemetry.NewSnapshotPublisher(agg, o.shared, cfg.Telemetry.PublishInterval*2, o.logger)
	}
	return core, nil
}

// Search runs one catalog search through the resilience layer.
func (c *Core) Search(ctx context.Context, req services.SearchRequest) (*entities.SearchResponse, error) {
	return c.Query.Search(ctx, req)
}

// Warm loads the first catalog snapshot so the fallback path has data.
func (c *Core) Warm(ctx context.Context) error {
	if err := c.Catalog.Warm(ctx); err != nil {
		return fmt.Errorf("warm catalog snapshot: %w", err)
	}
	c.logger.Info().Time("refreshed_at", c.Catalog.RefreshedAt()).Msg("catalog snapshot warmed")
	return nil
}

// Run drives the cache sweeper, resource sampler, error pattern pruning and
// snapshot publisher until ctx is done.
func (c *Core) Run(ctx context.Context) {
	var wg sync.WaitGroup
	spawn := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	spawn(func(ctx context.Context) { c.Cache.StartSweeper(ctx, c.cfg.Cache.SweepInterval) })
	spawn(c.Sampler.Run)
	spawn(c.pruneErrors)
	if c.Publisher != nil {
		spawn(func(ctx context.Context) { c.Publisher.Run(ctx, c.cfg.Telemetry.PublishInterval) })
	}

	c.logger.Info().Bool("publishing", c.Publisher != nil).Msg("background loops started")
	wg.Wait()
	c.logger.Info().Msg("background loops stopped")
}

func (c *Core) pruneErrors(ctx context.Context) {
	if c.cfg.Telemetry.AlertWindow <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.Telemetry.AlertWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Tracker.Prune(c.cfg.Telemetry.AlertRetention); removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("error patterns pruned")
			}
		}
	}
}
