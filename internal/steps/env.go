package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/8inary/infra/internal/apt"
	"github.com/8inary/infra/internal/config"
	"github.com/8inary/infra/internal/helm"
	"github.com/8inary/infra/internal/host"
	"github.com/8inary/infra/internal/hostfs"
	"github.com/8inary/infra/internal/inventory"
	"github.com/8inary/infra/internal/kube"
	"github.com/8inary/infra/internal/transport"
	"github.com/8inary/infra/internal/util/retry"
)

// FounderDialer opens a transport to the founding control-plane machine.
// The caller closes it.
type FounderDialer func(ctx context.Context) (transport.Transport, error)

// Env is the shared environment of every step in a run.
type Env struct {
	Exec     transport.Transport
	FS       hostfs.FS
	Packages apt.Manager
	Machine  inventory.Machine
	Host     *host.Context
	Config   *config.Config

	// Kube opens the cluster API with the machine's admin credentials.
	Kube kube.Factory
	// Charts opens a chart installer for a namespace.
	Charts helm.Factory
	// Founder reaches the founder to fetch join credentials.
	Founder FounderDialer

	// Poll tunes every readiness wait.
	Poll []retry.PollOption
	// ChartTimeout bounds chart hooks. Zero uses the installer default.
	ChartTimeout time.Duration
	Log          logr.Logger
}

// Validate checks that the collaborators the catalog needs are set.
func (e *Env) Validate() error {
	switch {
	case e.Exec == nil:
		return fmt.Errorf("step environment has no transport")
	case e.FS == nil:
		return fmt.Errorf("step environment has no file access")
	case e.Packages == nil:
		return fmt.Errorf("step environment has no package manager")
	case e.Host == nil:
		return fmt.Errorf("step environment has no host context")
	case e.Config == nil:
		return fmt.Errorf("step environment has no configuration")
	case e.Kube == nil:
		return fmt.Errorf("step environment has no cluster client factory")
	case e.Charts == nil:
		return fmt.Errorf("step environment has no chart installer factory")
	case e.Machine.Role == inventory.RoleJoiner && e.Founder == nil:
		return fmt.Errorf("joiner %s has no way to reach the founder", e.Machine.ID)
	}
	return nil
}

// run executes command and fails on a non-zero exit.
func (e *Env) run(ctx context.Context, command string) (string, error) {
	return transport.Run(ctx, e.Exec, command)
}

// runAll executes commands in order and stops at the first failure.
func (e *Env) runAll(ctx context.Context, commands ...string) error {
	for _, c := range commands {
		if _, err := e.run(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) succeeds(ctx context.Context, command string) (bool, error) {
	return transport.Succeeds(ctx, e.Exec, command)
}

func (e *Env) isFounder() bool {
	return e.Machine.Role == inventory.RoleFounder
}

// cluster opens the cluster API and reports false instead of an error when
// the cluster is unreachable, for checks that treat that as unconverged.
func (e *Env) cluster(ctx context.Context) (kube.Client, bool) {
	c, err := e.Kube(ctx)
	if err != nil {
		e.Log.V(1).Info("cluster API unavailable", "error", err.Error())
		return nil, false
	}
	return c, true
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
