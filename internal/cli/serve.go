package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cacheadapter "github.com/zatekoja/shopdiscovery/internal/adapters/cache"
	"github.com/zatekoja/shopdiscovery/internal/api/handlers"
	"github.com/zatekoja/shopdiscovery/internal/api/routes"
	"github.com/zatekoja/shopdiscovery/internal/app"
	"github.com/zatekoja/shopdiscovery/internal/infrastructure/clients/redis"
	"github.com/zatekoja/shopdiscovery/internal/infrastructure/observability"
	"github.com/zatekoja/shopdiscovery/internal/metrics"
	"github.com/zatekoja/shopdiscovery/pkg/config"
)

// NewServeCmd creates the 'serve' command running the query core behind HTTP.
func NewServeCmd(info BuildInfo) *cobra.Command {
	var catalogFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search and ops HTTP server",
		Long: `Start the query core and serve it over HTTP.

Endpoints:
  GET /api/search        ranked catalog search
  GET /api/ops/...       telemetry, alerts, breakers, error patterns, cache pools
  GET /metrics           Prometheus metrics
  GET /healthz           liveness

The server stops gracefully on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), info, catalogFile)
		},
	}

	cmd.Flags().StringVar(&catalogFile, "catalog", "", "read the catalog from a JSON file instead of PostgreSQL")

	return cmd
}

func runServe(ctx context.Context, info BuildInfo, catalogFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Log.Env, cfg.Log.Level)
	logger := *observability.GetLogger()
	logger.Info().Str("version", info.Version).Str("commit", info.Commit).Msg("starting shopcore")

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	store, closeStore, err := openCatalog(ctx, cfg, catalogFile, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithMeter(observability.Meter()),
	}
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			// Snapshots stay local without Redis.
			logger.Warn().Err(err).Msg("failed to initialize Redis client")
		} else {
			defer redisClient.Close()
			opts = append(opts, app.WithSharedStore(cacheadapter.NewRedisAdapter(redisClient.Client())))
			logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis client initialized")
		}
	}

	core, err := app.New(cfg, store, opts...)
	if err != nil {
		return err
	}
	if err := core.Warm(ctx); err != nil {
		logger.Warn().Err(err).Msg("catalog warm-up failed, fallback unavailable until the first successful read")
	}

	if err := metrics.Register(prometheus.DefaultRegisterer, core.Metrics); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	router := routes.NewRouter(
		handlers.NewSearchHandler(core),
		handlers.NewOpsHandler(core.Telemetry, core.Executor, core.Tracker, core.Cache, core.Ranking),
		promhttp.Handler(),
		core.Telemetry,
		logger,
	)
	server := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	background := make(chan struct{})
	go func() {
		core.Run(ctx)
		close(background)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-background
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	<-background

	logger.Info().Msg("shopcore stopped")
	return nil
}
