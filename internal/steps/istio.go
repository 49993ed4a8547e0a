package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/8inary/infra/internal/kube"
)

const (
	istioNamespace  = "istio-system"
	istioDeployment = "istiod"
)

// Istio installs the service mesh control plane. Only the founder acts.
type Istio struct {
	env *Env
}

// NewIstio creates the service mesh step.
func NewIstio(env *Env) *Istio {
	return &Istio{env: env}
}

// Name implements converge.Step.
func (s *Istio) Name() string { return "istio" }

// Check implements converge.Step.
func (s *Istio) Check(ctx context.Context) (bool, error) {
	if !s.env.isFounder() {
		return true, nil
	}
	client, ok := s.env.cluster(ctx)
	if !ok {
		return false, nil
	}
	exists, err := client.DeploymentExists(ctx, istioNamespace, istioDeployment)
	if err != nil {
		s.env.Log.V(1).Info("istiod lookup failed", "error", err.Error())
		return false, nil
	}
	return exists, nil
}

// Apply implements converge.Step.
func (s *Istio) Apply(ctx context.Context) error {
	if !s.env.isFounder() {
		return nil
	}
	version := s.env.Config.Versions.Istio

	res, err := s.env.Exec.Execute(ctx, "istioctl version --remote=false")
	if err != nil || !res.Success() || !strings.Contains(res.Stdout, version) {
		if _, err := s.env.run(ctx, istioctlInstallScript(version)); err != nil {
			return fmt.Errorf("failed to install istioctl %s: %w", version, err)
		}
	}

	install := "istioctl install --kubeconfig " + kube.AdminKubeconfigPath + " --set profile=default -y"
	if _, err := s.env.run(ctx, install); err != nil {
		return fmt.Errorf("istio install failed: %w", err)
	}
	return nil
}

func istioctlInstallScript(version string) string {
	return strings.Join([]string{
		"set -e",
		"cd /tmp",
		"curl -fsSL https://istio.io/downloadIstio | ISTIO_VERSION=" + version + " sh -",
		"install -m 0755 /tmp/istio-" + version + "/bin/istioctl /usr/local/bin/istioctl",
	}, "\n")
}
