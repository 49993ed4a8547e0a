package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

const (
	containerdPackage    = "containerd"
	ContainerdConfigPath = "/etc/containerd/config.toml"

	kubernetesKeyring    = "/etc/apt/keyrings/kubernetes-apt-keyring.gpg"
	KubernetesSourceList = "/etc/apt/sources.list.d/kubernetes.list"
)

var (
	kubernetesPackages = []string{"kubelet", "kubeadm", "kubectl"}
	systemdCgroupLine  = regexp.MustCompile(`(?m)^([ \t]*)SystemdCgroup[ \t]*=[ \t]*false[ \t]*$`)
)

// Containerd installs the container runtime with the systemd cgroup driver.
type Containerd struct {
	env *Env
}

// NewContainerd creates the container runtime step.
func NewContainerd(env *Env) *Containerd {
	return &Containerd{env: env}
}

// Name implements converge.Step.
func (s *Containerd) Name() string { return "containerd" }

// Check implements converge.Step.
func (s *Containerd) Check(ctx context.Context) (bool, error) {
	installed, err := s.env.Packages.IsInstalled(ctx, containerdPackage)
	if err != nil || !installed {
		return false, err
	}
	exists, err := s.env.FS.Exists(ctx, ContainerdConfigPath)
	if err != nil || !exists {
		return false, err
	}
	return s.env.succeeds(ctx, "systemctl is-active --quiet containerd")
}

// Apply implements converge.Step. An existing non-empty configuration is
// left untouched; a configuration that cannot be read fails the step.
func (s *Containerd) Apply(ctx context.Context) error {
	if err := s.env.Packages.Update(ctx); err != nil {
		return err
	}
	if err := s.env.Packages.Install(ctx, containerdPackage); err != nil {
		return err
	}
	if err := s.env.FS.MkdirAll(ctx, path.Dir(ContainerdConfigPath)); err != nil {
		return err
	}

	current, err := s.env.FS.ReadFile(ctx, ContainerdConfigPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read containerd config: %w", err)
	}
	if len(strings.TrimSpace(string(current))) == 0 {
		defaults, err := s.env.run(ctx, "containerd config default")
		if err != nil {
			return fmt.Errorf("failed to generate containerd config: %w", err)
		}
		if err := s.env.FS.WriteFile(ctx, ContainerdConfigPath, []byte(EnableSystemdCgroup(defaults)), 0o644); err != nil {
			return err
		}
	}

	if _, err := s.env.run(ctx, "systemctl restart containerd"); err != nil {
		return fmt.Errorf("failed to restart containerd: %w", err)
	}
	return nil
}

// EnableSystemdCgroup switches every runc SystemdCgroup option to true.
func EnableSystemdCgroup(config string) string {
	return systemdCgroupLine.ReplaceAllString(config, "${1}SystemdCgroup = true")
}

// Kubes installs and pins kubelet, kubeadm and kubectl from pkgs.k8s.io.
type Kubes struct {
	env *Env
}

// NewKubes creates the Kubernetes package step.
func NewKubes(env *Env) *Kubes {
	return &Kubes{env: env}
}

// Name implements converge.Step.
func (s *Kubes) Name() string { return "kubernetes-packages" }

// Check implements converge.Step.
func (s *Kubes) Check(ctx context.Context) (bool, error) {
	for _, pkg := range kubernetesPackages {
		ok, err := s.env.Packages.IsInstalled(ctx, pkg)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (s *Kubes) repository() string {
	return fmt.Sprintf("https://pkgs.k8s.io/core:/stable:/%s/deb/", s.env.Config.Cluster.PackageChannel())
}

// SourceList returns the apt source entry for the configured release channel.
func (s *Kubes) SourceList() string {
	return fmt.Sprintf("deb [signed-by=%s] %s /\n", kubernetesKeyring, s.repository())
}

// Apply implements converge.Step.
func (s *Kubes) Apply(ctx context.Context) error {
	if err := s.env.FS.MkdirAll(ctx, path.Dir(kubernetesKeyring)); err != nil {
		return err
	}

	key := fmt.Sprintf("curl -fsSL %s | gpg --dearmor --yes -o %s",
		shellescape.Quote(s.repository()+"Release.key"), kubernetesKeyring)
	if _, err := s.env.run(ctx, key); err != nil {
		return fmt.Errorf("failed to install kubernetes signing key: %w", err)
	}
	if err := s.env.FS.WriteFile(ctx, KubernetesSourceList, []byte(s.SourceList()), 0o644); err != nil {
		return err
	}

	if err := s.env.Packages.Update(ctx); err != nil {
		return err
	}
	if err := s.env.Packages.Install(ctx, kubernetesPackages...); err != nil {
		return err
	}
	return s.env.Packages.Hold(ctx, kubernetesPackages...)
}
