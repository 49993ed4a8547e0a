package commands

import (
	"github.com/spf13/cobra"

	"github.com/8inary/infra/cmd/infra/handlers"
)

// Check returns the command that reports convergence without changing anything.
func Check(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report which steps are converged",
		Long: `List the tools the steps rely on, then run every step's check and print
the result without applying anything.

The command exits non-zero when a required tool is missing or any step is
unsatisfied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Check(cmd.Context(), *opts)
		},
	}
}
