// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/8inary/infra/cmd/infra/handlers"
)

// Root returns the root command for the infra CLI.
//
// The root command owns the global flags; subcommands read them through the
// shared handlers.Options value.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "infra",
		Short:         "Converge bare-metal hosts into a Kubernetes cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: built-in settings)")
	flags.StringVarP(&opts.MachineID, "machine", "m", "", "Machine id to act on (default: this host)")
	flags.StringVar(&opts.LogLevel, "log-level", envOr("INFRA_LOG_LEVEL", "info"), "Log level: trace, debug, info, warn, error")
	flags.StringVar(&opts.LogFormat, "log-format", envOr("INFRA_LOG_FORMAT", "console"), "Log format: console or json")

	// Core commands
	cmd.AddCommand(Apply(opts))
	cmd.AddCommand(Check(opts))
	cmd.AddCommand(Exec(opts))

	// Utility commands
	cmd.AddCommand(Inventory())
	cmd.AddCommand(Keygen())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
