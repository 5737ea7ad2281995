package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo describes the running binary. Values are set via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewVersionCmd creates the 'version' command
func NewVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the current version, commit hash, and build date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Version:  %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:   %s\n", info.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Built:    %s\n", info.Date)
			return nil
		},
	}
}
