package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	semverPattern = regexp.MustCompile(`^v?\d+\.\d+\.\d+$`)
	digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	dnsLabel      = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
	interfaceName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,15}$`)
)

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.validateCluster(); err != nil {
		return fmt.Errorf("cluster validation failed: %w", err)
	}
	if err := c.validateVersions(); err != nil {
		return fmt.Errorf("versions validation failed: %w", err)
	}
	if err := c.validateIdentity(); err != nil {
		return fmt.Errorf("identity validation failed: %w", err)
	}
	if c.SSH.DialTimeout < 0 {
		return fmt.Errorf("ssh.dial_timeout cannot be negative, got %v", c.SSH.DialTimeout)
	}
	return nil
}

func (c *Config) validateCluster() error {
	cl := c.Cluster
	if ip := net.ParseIP(cl.VIP); ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid cluster.vip %q: must be an IPv4 address", cl.VIP)
	}
	if cl.VIPPort < 1 || cl.VIPPort > 65535 {
		return fmt.Errorf("invalid cluster.vip_port %d", cl.VIPPort)
	}
	if !interfaceName.MatchString(cl.Interface) {
		return fmt.Errorf("invalid cluster.interface %q", cl.Interface)
	}
	if _, _, err := net.ParseCIDR(cl.PodCIDR); err != nil {
		return fmt.Errorf("invalid cluster.pod_cidr: %w", err)
	}
	if _, _, err := net.ParseCIDR(cl.FirewallSource); err != nil {
		return fmt.Errorf("invalid cluster.firewall_source: %w", err)
	}
	if !semverPattern.MatchString(cl.KubernetesVersion) || !strings.HasPrefix(cl.KubernetesVersion, "v") {
		return fmt.Errorf("invalid cluster.kubernetes_version %q: expected vMAJOR.MINOR.PATCH", cl.KubernetesVersion)
	}
	if cl.FirewallTag == "" || strings.ContainsAny(cl.FirewallTag, "'\" \t\n") {
		return fmt.Errorf("invalid cluster.firewall_tag %q", cl.FirewallTag)
	}
	return nil
}

func (c *Config) validateVersions() error {
	v := c.Versions
	pins := []struct {
		name, value string
	}{
		{"cilium_cli", v.CiliumCLI},
		{"cilium", v.Cilium},
		{"kube_vip_version", v.KubeVIPVersion},
		{"istio", v.Istio},
		{"tidb_operator", v.TiDBOperator},
		{"tidb", v.TiDB},
	}
	for _, p := range pins {
		if !semverPattern.MatchString(p.value) {
			return fmt.Errorf("invalid versions.%s %q", p.name, p.value)
		}
	}
	if v.KubeVIPImage == "" {
		return fmt.Errorf("versions.kube_vip_image is required")
	}
	if v.KubeVIPDigest != "" && !digestPattern.MatchString(v.KubeVIPDigest) {
		return fmt.Errorf("invalid versions.kube_vip_digest: expected 64 hex characters")
	}
	return nil
}

func (c *Config) validateIdentity() error {
	id := c.Identity
	if !dnsLabel.MatchString(id.Namespace) {
		return fmt.Errorf("invalid identity.namespace %q", id.Namespace)
	}
	if !strings.HasPrefix(id.StorageRoot, "/") {
		return fmt.Errorf("identity.storage_root must be absolute, got %q", id.StorageRoot)
	}
	if id.Replicas < 1 {
		return fmt.Errorf("identity.replicas must be at least 1, got %d", id.Replicas)
	}
	if id.OperatorReadyPods < 1 {
		return fmt.Errorf("identity.operator_ready_pods must be at least 1, got %d", id.OperatorReadyPods)
	}
	if id.ChartRepo == "" || id.Chart == "" {
		return fmt.Errorf("identity.chart_repo and identity.chart are required")
	}
	return nil
}
