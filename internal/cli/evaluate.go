package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zatekoja/shopdiscovery/internal/app"
	"github.com/zatekoja/shopdiscovery/internal/evaluation"
	"github.com/zatekoja/shopdiscovery/pkg/config"
)

type evaluateOptions struct {
	goldenFile  string
	catalogFile string
	k           int
	minRecall   float64
	minMRR      float64
	maxFailed   int
	jsonOutput  bool
	verbose     bool
}

// NewEvaluateCmd creates the 'evaluate' command scoring ranking quality
// against a golden query set.
func NewEvaluateCmd() *cobra.Command {
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score ranking quality against golden queries",
		Long: `Run every golden query through the search path and report recall, MRR
and NDCG at the rank cutoff. Exits non-zero when a guardrail is violated.`,
		Example: `  shopcore evaluate --golden ./golden.json --catalog ./catalog.json
  shopcore evaluate --golden ./golden.json --min-recall 0.8 --min-mrr 0.6 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.goldenFile, "golden", "", "golden query file (JSON)")
	cmd.Flags().StringVar(&opts.catalogFile, "catalog", "", "read the catalog from a JSON file instead of PostgreSQL")
	cmd.Flags().IntVar(&opts.k, "k", evaluation.DefaultK, "rank cutoff")
	cmd.Flags().Float64Var(&opts.minRecall, "min-recall", 0, "minimum average recall@k")
	cmd.Flags().Float64Var(&opts.minMRR, "min-mrr", 0, "minimum average MRR@k")
	cmd.Flags().IntVar(&opts.maxFailed, "max-failed", 0, "maximum number of failed queries")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output the summary as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	_ = cmd.MarkFlagRequired("golden")

	return cmd
}

func runEvaluate(cmd *cobra.Command, opts evaluateOptions) error {
	queries, err := evaluation.LoadGoldenQueries(opts.goldenFile)
	if err != nil {
		return err
	}
	if err := evaluation.ValidateGoldenQueries(queries); err != nil {
		return err
	}

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

	summary, err := evaluation.NewRunner(core, opts.k).Run(ctx, queries)
	if err != nil {
		return fmt.Errorf("evaluation aborted: %w", err)
	}

	if opts.jsonOutput {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		printSummary(cmd, summary)
	}

	violations := evaluation.NewGuardrails(evaluation.GuardrailConfig{
		MinRecall:        opts.minRecall,
		MinMRR:           opts.minMRR,
		MaxFailedQueries: opts.maxFailed,
	}).Check(summary)
	if len(violations) > 0 {
		return fmt.Errorf("guardrails violated: %s", strings.Join(violations, "; "))
	}
	return nil
}

func printSummary(cmd *cobra.Command, s *evaluation.EvalSummary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Queries:   %d (%d failed, %d with hits)\n", s.TotalQueries, s.FailedQueries, s.QueriesWithHits)
	fmt.Fprintf(w, "Recall@%d: %.3f\n", s.K, s.AvgRecall)
	fmt.Fprintf(w, "MRR@%d:    %.3f\n", s.K, s.AvgMRR)
	fmt.Fprintf(w, "NDCG@%d:   %.3f\n", s.K, s.AvgNDCG)
	fmt.Fprintf(w, "Latency:   %s avg\n", s.AvgLatency)

	difficulties := make([]string, 0, len(s.ByDifficulty))
	for d := range s.ByDifficulty {
		difficulties = append(difficulties, string(d))
	}
	sort.Strings(difficulties)
	for _, d := range difficulties {
		ds := s.ByDifficulty[evaluation.Difficulty(d)]
		fmt.Fprintf(w, "  %-8s n=%d recall=%.3f mrr=%.3f\n", d, ds.Count, ds.AvgRecall, ds.AvgMRR)
	}

	for _, r := range s.Results {
		if r.Error != "" {
			fmt.Fprintf(w, "  FAILED %s: %s\n", r.QueryID, r.Error)
		} else if r.Recall == 0 {
			fmt.Fprintf(w, "  MISS   %s %q got %v\n", r.QueryID, r.Query, r.RetrievedIDs)
		}
	}
}
