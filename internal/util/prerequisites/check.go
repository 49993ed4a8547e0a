// Package prerequisites checks that a machine carries the base tools the
// convergence steps shell out to, before any step changes it.
package prerequisites

import (
	"context"
	"fmt"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/8inary/infra/internal/transport"
)

// Tool represents a command the steps may invoke.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// Package is the Ubuntu package that provides the tool.
	Package string
}

// DefaultTools returns the tools every machine needs before the first step.
func DefaultTools() []Tool {
	return []Tool{
		{Name: "sh", Required: true, Description: "Runs every step command", Package: "dash"},
		{Name: "base64", Required: true, Description: "Transfers file contents", Package: "coreutils"},
		{Name: "sha256sum", Required: true, Description: "Verifies downloaded binaries", Package: "coreutils"},
		{Name: "curl", Required: true, Description: "Downloads signing keys, CLIs and CRDs", Package: "curl"},
		{Name: "gpg", Required: true, Description: "Dearmors the Kubernetes apt key", Package: "gpg"},
		{Name: "apt-get", Required: true, Description: "Installs packages", Package: "apt"},
		{Name: "dpkg-query", Required: true, Description: "Detects installed packages", Package: "dpkg"},
		{Name: "systemctl", Required: true, Description: "Manages containerd and the kubelet", Package: "systemd"},
		{Name: "modprobe", Required: true, Description: "Loads kernel modules", Package: "kmod"},
		{Name: "sysctl", Required: true, Description: "Applies kernel parameters", Package: "procps"},
		{Name: "swapoff", Required: true, Description: "Disables swap", Package: "util-linux"},
		{Name: "ufw", Required: true, Description: "Opens cluster ports", Package: "ufw"},
	}
}

// OptionalTools returns tools the steps install themselves when missing.
func OptionalTools() []Tool {
	return []Tool{
		{Name: "kubeadm", Description: "Installed by the kubernetes-packages step", Package: "kubeadm"},
		{Name: "cilium", Description: "Installed by the control-plane step on the founder"},
		{Name: "istioctl", Description: "Installed by the istio step on the founder"},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool  Tool
	Found bool
	Path  string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if !tool.Required {
			continue
		}
		if tool.Package != "" {
			missing = append(missing, fmt.Sprintf("%s (apt package %s)", tool.Name, tool.Package))
		} else {
			missing = append(missing, tool.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check looks every tool up in the PATH of the machine behind t. Only a
// failure to run the lookup is returned as an error.
func Check(ctx context.Context, t transport.Transport, tools []Tool) (*CheckResults, error) {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		res, err := t.Execute(ctx, "command -v "+shellescape.Quote(tool.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s: %w", tool.Name, err)
		}
		if res.Success() && strings.TrimSpace(res.Stdout) != "" {
			result.Found = true
			result.Path = strings.TrimSpace(res.Stdout)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results, nil
}

// CheckDefault checks the default required tools.
func CheckDefault(ctx context.Context, t transport.Transport) (*CheckResults, error) {
	return Check(ctx, t, DefaultTools())
}

// CheckAll checks all tools (default + optional).
func CheckAll(ctx context.Context, t transport.Transport) (*CheckResults, error) {
	defaults := DefaultTools()
	optional := OptionalTools()
	all := make([]Tool, 0, len(defaults)+len(optional))
	all = append(all, defaults...)
	all = append(all, optional...)
	return Check(ctx, t, all)
}
