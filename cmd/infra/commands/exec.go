package commands

import (
	"github.com/spf13/cobra"

	"github.com/8inary/infra/cmd/infra/handlers"
)

// Exec returns the command that runs an arbitrary command on a machine.
func Exec(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- COMMAND [ARGS...]",
		Short: "Run a command on the machine",
		Long: `Run a shell command on the machine through the transport the steps use.

Examples:
  infra exec -- uname -a
  infra exec --machine e65407e7fcd24bc58a7a20ce0b4992dd -- systemctl is-active kubelet`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Exec(cmd.Context(), *opts, args)
		},
	}
}
