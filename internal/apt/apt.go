// Package apt wraps the Debian package tools used during convergence.
package apt

import (
	"context"
	"fmt"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/8inary/infra/internal/transport"
)

const nonInteractive = "DEBIAN_FRONTEND=noninteractive "

// Manager is the package-manager collaborator used by steps.
type Manager interface {
	IsInstalled(ctx context.Context, pkg string) (bool, error)
	Update(ctx context.Context) error
	Install(ctx context.Context, pkgs ...string) error
	Hold(ctx context.Context, pkgs ...string) error
}

// Apt drives dpkg-query, apt-get and apt-mark through a transport.
type Apt struct {
	exec transport.Transport
}

// New returns an apt manager running on t.
func New(t transport.Transport) *Apt {
	return &Apt{exec: t}
}

// IsInstalled reports whether dpkg lists pkg as installed or held.
func (a *Apt) IsInstalled(ctx context.Context, pkg string) (bool, error) {
	res, err := a.exec.Execute(ctx, "dpkg-query -W -f='${Status}' "+shellescape.Quote(pkg))
	if err != nil {
		return false, fmt.Errorf("failed to query package %s: %w", pkg, err)
	}
	if !res.Success() {
		return false, nil
	}
	return IsInstalledStatus(res.Stdout), nil
}

// IsInstalledStatus interprets a dpkg ${Status} string.
func IsInstalledStatus(status string) bool {
	switch strings.TrimSpace(status) {
	case "install ok installed", "hold ok installed":
		return true
	default:
		return false
	}
}

// Update refreshes the package index.
func (a *Apt) Update(ctx context.Context) error {
	if _, err := transport.Run(ctx, a.exec, nonInteractive+"apt-get update"); err != nil {
		return fmt.Errorf("failed to update package index: %w", err)
	}
	return nil
}

// Install installs pkgs without recommended extras.
func (a *Apt) Install(ctx context.Context, pkgs ...string) error {
	cmd := nonInteractive + "apt-get install -y --no-install-recommends " + shellescape.QuoteCommand(pkgs)
	if _, err := transport.Run(ctx, a.exec, cmd); err != nil {
		return fmt.Errorf("failed to install %s: %w", strings.Join(pkgs, ", "), err)
	}
	return nil
}

// Hold pins pkgs against upgrades.
func (a *Apt) Hold(ctx context.Context, pkgs ...string) error {
	if _, err := transport.Run(ctx, a.exec, "apt-mark hold "+shellescape.QuoteCommand(pkgs)); err != nil {
		return fmt.Errorf("failed to hold %s: %w", strings.Join(pkgs, ", "), err)
	}
	return nil
}
