package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "192.168.0.2:6443", cfg.Cluster.Endpoint())
	assert.Equal(t, "https://192.168.0.2:6443", cfg.Cluster.Server())
	assert.Equal(t, "v1.34", cfg.Cluster.PackageChannel())
	assert.True(t, cfg.ControlPlane.Schedulable)
	assert.Equal(t,
		"https://raw.githubusercontent.com/pingcap/tidb-operator/v1.6.3/manifests/crd.yaml",
		cfg.CRDURL())
}

func TestParse_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
cluster:
  vip: 10.1.0.10
  interface: eth0
control_plane:
  schedulable: false
ssh:
  dial_timeout: 3s
identity:
  replicas: 3
`))
	require.NoError(t, err)

	assert.Equal(t, "10.1.0.10", cfg.Cluster.VIP)
	assert.Equal(t, "eth0", cfg.Cluster.Interface)
	assert.Equal(t, 6443, cfg.Cluster.VIPPort)
	assert.Equal(t, "10.0.0.0/16", cfg.Cluster.PodCIDR)
	assert.False(t, cfg.ControlPlane.Schedulable)
	assert.Equal(t, 3*time.Second, cfg.SSH.DialTimeout)
	assert.True(t, cfg.SSH.Sudo)
	assert.Equal(t, 3, cfg.Identity.Replicas)
	assert.Equal(t, "identity", cfg.Identity.Namespace)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed yaml", yaml: "cluster: [\n"},
		{name: "unknown key", yaml: "cluster:\n  vipp: 1.2.3.4\n"},
		{name: "bad vip", yaml: "cluster:\n  vip: not-an-ip\n"},
		{name: "ipv6 vip", yaml: "cluster:\n  vip: \"::1\"\n"},
		{name: "bad cidr", yaml: "cluster:\n  pod_cidr: 10.0.0.0\n"},
		{name: "bad port", yaml: "cluster:\n  vip_port: 70000\n"},
		{name: "bad kubernetes version", yaml: "cluster:\n  kubernetes_version: 1.34\n"},
		{name: "quoted tag", yaml: "cluster:\n  firewall_tag: \"a'b\"\n"},
		{name: "bad digest", yaml: "versions:\n  kube_vip_digest: abc\n"},
		{name: "relative storage", yaml: "identity:\n  storage_root: disks\n"},
		{name: "zero replicas", yaml: "identity:\n  replicas: 0\n"},
		{name: "bad namespace", yaml: "identity:\n  namespace: Identity\n"},
		{name: "bad duration", yaml: "ssh:\n  dial_timeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "infra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("versions:\n  istio: 1.29.0\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.29.0", cfg.Versions.Istio)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestPackageChannel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "v1.35", ClusterConfig{KubernetesVersion: "v1.35.0"}.PackageChannel())
	assert.Equal(t, "latest", ClusterConfig{KubernetesVersion: "latest"}.PackageChannel())
}
