package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zatekoja/shopdiscovery/internal/app"
	"github.com/zatekoja/shopdiscovery/internal/application/services"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/pkg/config"
)

type searchOptions struct {
	category    string
	brand       string
	inStock     bool
	limit       int
	user        string
	catalogFile string
	jsonOutput  bool
	verbose     bool
}

// NewSearchCmd creates the 'search' command for one-shot catalog searches.
func NewSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog",
		Long: `Run one search through the full query path: cached results, ranking,
retries and the circuit breaker, falling back to the last catalog snapshot
when the store fails.`,
		Example: `  shopcore search "basmati rice"
  shopcore search rice --category grains --in-stock --limit 5
  shopcore search oil --catalog ./catalog.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "", "only match this category")
	cmd.Flags().StringVar(&opts.brand, "brand", "", "only match this brand")
	cmd.Flags().BoolVar(&opts.inStock, "in-stock", false, "only match entities in stock")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVar(&opts.user, "user", "", "user id scoping cached results")
	cmd.Flags().StringVar(&opts.catalogFile, "catalog", "", "read the catalog from a JSON file instead of PostgreSQL")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := zerolog.Nop()
	if opts.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, closeStore, err := openCatalog(ctx, cfg, opts.catalogFile, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	core, err := app.New(cfg, store, app.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := core.Warm(ctx); err != nil {
		logger.Warn().Err(err).Msg("catalog warm-up failed")
	}

	resp, err := core.Search(ctx, services.SearchRequest{
		Query:  query,
		Limit:  opts.limit,
		UserID: opts.user,
		Filters: repositories.CatalogFilter{
			Category:    opts.category,
			Brand:       opts.brand,
			InStockOnly: opts.inStock,
		},
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.jsonOutput {
		return outputSearchJSON(cmd, resp)
	}
	return outputSearchTable(cmd, resp)
}

func outputSearchJSON(cmd *cobra.Command, resp *entities.SearchResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, resp *entities.SearchResponse) error {
	w := cmd.OutOrStdout()
	if resp.FallbackUsed {
		fmt.Fprintf(w, "Served from catalog snapshot (%s)\n\n", resp.PrimaryError)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintln(w, "Results:")
	fmt.Fprintln(w)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "  [%d] %s (%.2f, %s)\n", i+1, r.Entity.Name, r.RelevanceScore, r.MatchType)
		if r.Entity.Brand != "" || r.Entity.Category != "" {
			fmt.Fprintf(w, "      %s / %s\n", r.Entity.Brand, r.Entity.Category)
		}
		if r.Entity.Price != nil {
			fmt.Fprintf(w, "      Price: %.2f  Stock: %d\n", *r.Entity.Price, r.Entity.Stock)
		} else {
			fmt.Fprintf(w, "      Stock: %d\n", r.Entity.Stock)
		}
	}
	return nil
}
