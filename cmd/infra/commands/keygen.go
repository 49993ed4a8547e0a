package commands

import (
	"github.com/spf13/cobra"

	"github.com/8inary/infra/cmd/infra/handlers"
)

// Keygen returns the command that creates the management SSH key.
func Keygen() *cobra.Command {
	var (
		path    string
		comment string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the management SSH key",
		Long: `Create an ed25519 key pair for reaching other machines.

The key is written to ~/.ssh/id_ed25519 of the invoking user unless --output
is given. An existing key is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Keygen(cmd.Context(), path, comment)
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "", "Private key path")
	cmd.Flags().StringVar(&comment, "comment", "infra", "Key comment")

	return cmd
}
