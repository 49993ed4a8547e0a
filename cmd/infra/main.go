// Package main is the entry point for the infra CLI.
//
// infra converges bare-metal machines into a Kubernetes cluster. Each machine
// is identified by /etc/machine-id, assigned a role from a fixed inventory,
// and brought to its desired state by idempotent check-then-apply steps.
//
// Commands: apply, check, exec, inventory, keygen.
//
// For detailed usage information, run:
//
//	infra --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/8inary/infra/cmd/infra/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	commands.SetVersionInfo(version, commit, date)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
