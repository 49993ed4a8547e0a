package commands

import (
	"github.com/spf13/cobra"

	"github.com/8inary/infra/cmd/infra/handlers"
)

// Inventory returns the command that lists known machines.
func Inventory() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "List known machines and their roles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return handlers.Inventory()
		},
	}
}
