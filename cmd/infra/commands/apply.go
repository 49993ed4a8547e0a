package commands

import (
	"github.com/spf13/cobra"

	"github.com/8inary/infra/cmd/infra/handlers"
)

// Apply returns the command that converges a machine.
//
// Optional flags:
//
//	--plain: Disable the interactive progress view
func Apply(opts *handlers.Options) *cobra.Command {
	var applyOpts handlers.ApplyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the machine",
		Long: `Converge a machine to its role in the cluster.

Every step is checked first and only applied when unsatisfied; a step that is
still unsatisfied after applying stops the run. Running apply again on a
converged machine changes nothing.

Without --machine the command acts on this host, identified by
/etc/machine-id. With --machine it connects over SSH unless the machine's
address belongs to this host.

Examples:
  # Converge this host
  sudo infra apply

  # Converge another machine over SSH
  infra apply --machine e65407e7fcd24bc58a7a20ce0b4992dd

  # Converge with logs instead of the progress view
  infra apply --plain --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), *opts, applyOpts)
		},
	}

	cmd.Flags().BoolVar(&applyOpts.Plain, "plain", false, "Disable the interactive progress view")

	return cmd
}
