package steps

import (
	"context"
	"fmt"
	"path"

	"al.essio.dev/pkg/shellescape"
	"github.com/hashicorp/go-multierror"

	"github.com/8inary/infra/internal/hostfs"
)

const (
	// KernelModulesPath lists the modules loaded at boot.
	KernelModulesPath = "/etc/modules-load.d/k8s.conf"
	// KernelModulesContent is the exact content of KernelModulesPath.
	KernelModulesContent = "overlay\nbr_netfilter\n"
	// KernelModulesFingerprint is the SHA-256 of KernelModulesContent.
	KernelModulesFingerprint = "fcaf07413a456d658640930cef56ed4d13330123e3b522c481021613c64755e3"

	// SysctlPath holds the kernel parameters the kubelet and CNI need.
	SysctlPath = "/etc/sysctl.d/k8s.conf"
	// SysctlContent is the exact content of SysctlPath.
	SysctlContent = "net.bridge.bridge-nf-call-iptables = 1\n" +
		"net.bridge.bridge-nf-call-ip6tables = 1\n" +
		"net.ipv4.ip_forward = 1\n"
	// SysctlFingerprint is the SHA-256 of SysctlContent.
	SysctlFingerprint = "6e3f751b8409493b80fb7154ee21989dece3322d8b9018157ffef64dfbc10799"
)

// KernelModules keeps overlay and br_netfilter loaded now and at boot.
type KernelModules struct {
	env     *Env
	modules []string
}

// NewKernelModules creates the kernel module step.
func NewKernelModules(env *Env) *KernelModules {
	return &KernelModules{env: env, modules: []string{"overlay", "br_netfilter"}}
}

// Name implements converge.Step.
func (s *KernelModules) Name() string { return "kernel-modules" }

// Check implements converge.Step.
func (s *KernelModules) Check(ctx context.Context) (bool, error) {
	ok, err := hostfs.MatchesFingerprint(ctx, s.env.FS, KernelModulesPath, KernelModulesFingerprint)
	if err != nil || !ok {
		return false, err
	}
	for _, m := range s.modules {
		loaded, err := s.env.FS.Exists(ctx, path.Join("/sys/module", m))
		if err != nil || !loaded {
			return false, err
		}
	}
	return true, nil
}

// Apply implements converge.Step. Every module is attempted; all load
// failures are reported together.
func (s *KernelModules) Apply(ctx context.Context) error {
	if err := s.env.FS.MkdirAll(ctx, path.Dir(KernelModulesPath)); err != nil {
		return err
	}
	if err := s.env.FS.WriteFile(ctx, KernelModulesPath, []byte(KernelModulesContent), 0o644); err != nil {
		return err
	}

	var result *multierror.Error
	for _, m := range s.modules {
		if _, err := s.env.run(ctx, "modprobe "+shellescape.Quote(m)); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to load module %s: %w", m, err))
		}
	}
	return result.ErrorOrNil()
}

// Sysctl persists and applies the bridge and forwarding parameters.
type Sysctl struct {
	env *Env
}

// NewSysctl creates the sysctl step.
func NewSysctl(env *Env) *Sysctl {
	return &Sysctl{env: env}
}

// Name implements converge.Step.
func (s *Sysctl) Name() string { return "sysctl" }

// Check implements converge.Step.
func (s *Sysctl) Check(ctx context.Context) (bool, error) {
	return hostfs.MatchesFingerprint(ctx, s.env.FS, SysctlPath, SysctlFingerprint)
}

// Apply implements converge.Step.
func (s *Sysctl) Apply(ctx context.Context) error {
	if err := s.env.FS.MkdirAll(ctx, path.Dir(SysctlPath)); err != nil {
		return err
	}
	if err := s.env.FS.WriteFile(ctx, SysctlPath, []byte(SysctlContent), 0o644); err != nil {
		return err
	}
	if _, err := s.env.run(ctx, "sysctl --system"); err != nil {
		return fmt.Errorf("failed to reload kernel parameters: %w", err)
	}
	return nil
}
