package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zatekoja/shopdiscovery/internal/adapters/database"
	"github.com/zatekoja/shopdiscovery/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/shopdiscovery/pkg/config"
)

// NewSeedCmd creates the 'seed' command loading a catalog file into PostgreSQL.
func NewSeedCmd() *cobra.Command {
	var (
		catalogFile string
		reset       bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a catalog file into PostgreSQL",
		Long: `Create the catalog table if needed and upsert every entity from a JSON
catalog file. Entities without an id get a generated one.`,
		Example: `  shopcore seed --catalog ./catalog.json
  shopcore seed --catalog ./catalog.json --reset`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, catalogFile, reset)
		},
	}

	cmd.Flags().StringVar(&catalogFile, "catalog", "", "catalog file (JSON)")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing catalog entities first")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runSeed(cmd *cobra.Command, catalogFile string, reset bool) error {
	list, err := loadCatalogFile(catalogFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pg, err := postgres.NewClient(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	adapter := database.NewPostgresCatalogAdapter(pg)
	if err := adapter.EnsureSchema(ctx); err != nil {
		return err
	}
	if reset {
		n, err := adapter.Clear(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int64("deleted", n).Msg("catalog reset")
	}
	if err := adapter.Upsert(ctx, list...); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d catalog entities\n", len(list))
	return nil
}
