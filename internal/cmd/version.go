package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Skryldev/image-optimizer/version"
)

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version.Fprint(cmd.OutOrStdout(), "imageoptimizer")
		},
	}
}
