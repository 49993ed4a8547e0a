package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the desired state shared by every machine of the cluster.
type Config struct {
	Cluster      ClusterConfig      `mapstructure:"cluster" yaml:"cluster"`
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane" yaml:"control_plane"`
	Versions     VersionsConfig     `mapstructure:"versions" yaml:"versions"`
	SSH          SSHConfig          `mapstructure:"ssh" yaml:"ssh"`
	Identity     IdentityConfig     `mapstructure:"identity" yaml:"identity"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// ClusterConfig describes the control-plane endpoint and node network.
type ClusterConfig struct {
	VIP               string `mapstructure:"vip" yaml:"vip"`
	VIPPort           int    `mapstructure:"vip_port" yaml:"vip_port"`
	Interface         string `mapstructure:"interface" yaml:"interface"`
	PodCIDR           string `mapstructure:"pod_cidr" yaml:"pod_cidr"`
	KubernetesVersion string `mapstructure:"kubernetes_version" yaml:"kubernetes_version"`
	FirewallSource    string `mapstructure:"firewall_source" yaml:"firewall_source"`
	FirewallTag       string `mapstructure:"firewall_tag" yaml:"firewall_tag"`
}

// Endpoint returns vip:port.
func (c ClusterConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.VIP, c.VIPPort)
}

// Server returns the API server URL behind the VIP.
func (c ClusterConfig) Server() string {
	return "https://" + c.Endpoint()
}

// PackageChannel returns the vMAJOR.MINOR apt channel of KubernetesVersion.
func (c ClusterConfig) PackageChannel() string {
	parts := strings.SplitN(strings.TrimPrefix(c.KubernetesVersion, "v"), ".", 3)
	if len(parts) < 2 {
		return c.KubernetesVersion
	}
	return "v" + parts[0] + "." + parts[1]
}

// ControlPlaneConfig tunes control-plane nodes.
type ControlPlaneConfig struct {
	// Schedulable removes the control-plane NoSchedule taint once the node registers.
	Schedulable bool `mapstructure:"schedulable" yaml:"schedulable"`
}

// VersionsConfig pins every downloaded component.
type VersionsConfig struct {
	CiliumCLI      string `mapstructure:"cilium_cli" yaml:"cilium_cli"`
	Cilium         string `mapstructure:"cilium" yaml:"cilium"`
	KubeVIPImage   string `mapstructure:"kube_vip_image" yaml:"kube_vip_image"`
	KubeVIPVersion string `mapstructure:"kube_vip_version" yaml:"kube_vip_version"`
	KubeVIPDigest  string `mapstructure:"kube_vip_digest" yaml:"kube_vip_digest"`
	Istio          string `mapstructure:"istio" yaml:"istio"`
	TiDBOperator   string `mapstructure:"tidb_operator" yaml:"tidb_operator"`
	TiDB           string `mapstructure:"tidb" yaml:"tidb"`
}

// SSHConfig controls the remote transport.
type SSHConfig struct {
	// KeyPath overrides <home>/.ssh/id_ed25519 of the invoking user.
	KeyPath     string        `mapstructure:"key_path" yaml:"key_path"`
	Sudo        bool          `mapstructure:"sudo" yaml:"sudo"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// IdentityConfig lays out the identity database.
type IdentityConfig struct {
	Namespace         string `mapstructure:"namespace" yaml:"namespace"`
	StorageRoot       string `mapstructure:"storage_root" yaml:"storage_root"`
	Replicas          int    `mapstructure:"replicas" yaml:"replicas"`
	ChartRepo         string `mapstructure:"chart_repo" yaml:"chart_repo"`
	Chart             string `mapstructure:"chart" yaml:"chart"`
	OperatorReadyPods int    `mapstructure:"operator_ready_pods" yaml:"operator_ready_pods"`
}

// CRDURL returns the operator CRD manifest matching the pinned operator version.
func (c *Config) CRDURL() string {
	return fmt.Sprintf("https://raw.githubusercontent.com/pingcap/tidb-operator/%s/manifests/crd.yaml", c.Versions.TiDBOperator)
}

// MetricsConfig controls the node-exporter textfile output.
type MetricsConfig struct {
	// TextfilePath is where run metrics are written; empty disables them.
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// Default returns the development cluster settings.
func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			VIP:               "192.168.0.2",
			VIPPort:           6443,
			Interface:         "wlo1",
			PodCIDR:           "10.0.0.0/16",
			KubernetesVersion: "v1.34.2",
			FirewallSource:    "192.168.0.0/16",
			FirewallTag:       "8inary",
		},
		ControlPlane: ControlPlaneConfig{
			Schedulable: true,
		},
		Versions: VersionsConfig{
			CiliumCLI:      "v0.18.9",
			Cilium:         "1.18.4",
			KubeVIPImage:   "ghcr.io/kube-vip/kube-vip",
			KubeVIPVersion: "v1.0.2",
			KubeVIPDigest:  "f86c774c4c0dcab81e56e3bdb42a5a6105c324767cfbc3a44df044f8a2666f8e",
			Istio:          "1.28.0",
			TiDBOperator:   "v1.6.3",
			TiDB:           "v8.5.2",
		},
		SSH: SSHConfig{
			Sudo:        true,
			DialTimeout: 10 * time.Second,
		},
		Identity: IdentityConfig{
			Namespace:         "identity",
			StorageRoot:       "/mnt/disks/identity",
			Replicas:          5,
			ChartRepo:         "https://charts.pingcap.org/",
			Chart:             "tidb-operator",
			OperatorReadyPods: 1,
		},
	}
}
