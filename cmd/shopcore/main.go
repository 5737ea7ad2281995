/*
Package main is the entry point for the shopcore CLI.

shopcore runs the query core of the shop discovery assistant: cached,
ranked catalog search behind retries and circuit breakers, with telemetry
and alerting on every call.

Usage:

	shopcore [command]

Available Commands:

	serve       Run the search and ops HTTP server
	search      Search the catalog once
	evaluate    Score ranking quality against golden queries
	seed        Load a catalog file into PostgreSQL
	version     Show version information
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zatekoja/shopdiscovery/internal/cli"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	info := cli.BuildInfo{Version: version, Commit: commit, Date: date}

	rootCmd := &cobra.Command{
		Use:   "shopcore",
		Short: "Query core of the shop discovery assistant",
		Long: `shopcore answers catalog searches for the shop discovery assistant.

Searches are ranked in-process, memoized per user, retried on transient
failures and guarded by per-dependency circuit breakers. When the catalog
store is down, results come from the last snapshot known to be good.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.NewServeCmd(info))
	rootCmd.AddCommand(cli.NewSearchCmd())
	rootCmd.AddCommand(cli.NewEvaluateCmd())
	rootCmd.AddCommand(cli.NewSeedCmd())
	rootCmd.AddCommand(cli.NewVersionCmd(info))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
