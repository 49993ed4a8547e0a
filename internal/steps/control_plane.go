package steps

import (
	"context"
	"fmt"
	"path"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/8inary/infra/internal/inventory"
	"github.com/8inary/infra/internal/kube"
	"github.com/8inary/infra/internal/manifests"
	"github.com/8inary/infra/internal/util/retry"
)

const (
	superAdminKubeconfigPath = "/etc/kubernetes/super-admin.conf"
	clusterCAPath            = "/etc/kubernetes/pki/ca.crt"

	joinCredentialScript = "export KUBECONFIG=" + kube.AdminKubeconfigPath + "; " +
		"K=$(kubeadm init phase upload-certs --upload-certs | tail -1); " +
		"kubeadm token create --print-join-command --certificate-key $K"
)

var controlPlaneManifests = []string{
	"kube-apiserver.yaml",
	"kube-controller-manager.yaml",
	"kube-scheduler.yaml",
	"etcd.yaml",
}

// ControlPlane makes the machine a control-plane member: founders
// initialize the cluster, joiners join it, workers are left alone.
type ControlPlane struct {
	env *Env
}

// NewControlPlane creates the control-plane step.
func NewControlPlane(env *Env) *ControlPlane {
	return &ControlPlane{env: env}
}

// Name implements converge.Step.
func (s *ControlPlane) Name() string { return "control-plane" }

// Check implements converge.Step. Cluster API failures count as unconverged.
func (s *ControlPlane) Check(ctx context.Context) (bool, error) {
	if !s.env.Machine.Role.IsControlPlane() {
		return true, nil
	}

	if _, err := s.env.FS.ReadFile(ctx, kube.AdminKubeconfigPath); err != nil {
		return false, nil
	}
	client, ok := s.env.cluster(ctx)
	if !ok {
		return false, nil
	}
	labeled, err := client.NodeHasLabel(ctx, s.env.Host.NodeName(), kube.ControlPlaneLabel)
	if err != nil {
		s.env.Log.V(1).Info("control-plane label lookup failed", "error", err.Error())
		return false, nil
	}
	return labeled, nil
}

// Apply implements converge.Step.
func (s *ControlPlane) Apply(ctx context.Context) error {
	switch s.env.Machine.Role {
	case inventory.RoleFounder:
		if err := s.initialize(ctx); err != nil {
			return err
		}
	case inventory.RoleJoiner:
		if err := s.join(ctx); err != nil {
			return err
		}
	default:
		return nil
	}
	return s.allowWorkloads(ctx)
}

func (s *ControlPlane) kubeVIP(kubeconfig string) manifests.KubeVIP {
	c := s.env.Config
	return manifests.KubeVIP{
		Image:      c.Versions.KubeVIPImage,
		Version:    c.Versions.KubeVIPVersion,
		Digest:     c.Versions.KubeVIPDigest,
		VIP:        c.Cluster.VIP,
		Port:       c.Cluster.VIPPort,
		Interface:  c.Cluster.Interface,
		Kubeconfig: kubeconfig,
	}
}

func (s *ControlPlane) writeKubeVIP(ctx context.Context, kubeconfig string) error {
	data, err := manifests.RenderKubeVIP(s.kubeVIP(kubeconfig))
	if err != nil {
		return err
	}
	if err := s.env.FS.MkdirAll(ctx, path.Dir(manifests.KubeVIPManifestPath)); err != nil {
		return err
	}
	return s.env.FS.WriteFile(ctx, manifests.KubeVIPManifestPath, data, 0o600)
}

func (s *ControlPlane) initialize(ctx context.Context) error {
	log := s.env.Log.WithValues("role", "founder")
	c := s.env.Config

	if err := openPorts(ctx, s.env); err != nil {
		return err
	}

	log.Info("staging kube-vip image")
	ref := s.kubeVIP("").ImageRef()
	if _, err := s.env.run(ctx, "ctr -n k8s.io image pull "+shellescape.Quote(ref)); err != nil {
		return fmt.Errorf("failed to pull %s: %w", ref, err)
	}

	if err := s.installCiliumCLI(ctx); err != nil {
		return err
	}

	log.Info("resetting node")
	if err := s.env.runAll(ctx, founderResetCommands()...); err != nil {
		return fmt.Errorf("failed to reset node: %w", err)
	}

	// admin.conf has no RBAC binding until init finishes; kube-vip needs
	// super-admin.conf to win the first leader election.
	if err := s.writeKubeVIP(ctx, superAdminKubeconfigPath); err != nil {
		return err
	}

	log.Info("initializing cluster", "endpoint", c.Cluster.Endpoint())
	if _, err := s.env.run(ctx, kubeadmInitCommand(c.Cluster.VIP, c.Cluster.VIPPort, c.Cluster.PodCIDR, c.Cluster.KubernetesVersion)); err != nil {
		return fmt.Errorf("kubeadm init failed: %w", err)
	}

	if err := s.rewriteTrust(ctx); err != nil {
		return err
	}
	if err := s.copyKubeconfig(ctx); err != nil {
		return err
	}

	log.Info("installing cilium", "version", c.Versions.Cilium)
	if _, err := s.env.run(ctx, ciliumInstallCommand(c.Versions.Cilium, c.Cluster.VIP, c.Cluster.VIPPort, c.Cluster.PodCIDR)); err != nil {
		return fmt.Errorf("cilium install failed: %w", err)
	}
	if _, err := s.env.run(ctx, "KUBECONFIG="+kube.AdminKubeconfigPath+" cilium status --wait"); err != nil {
		return fmt.Errorf("cilium did not become ready: %w", err)
	}
	return nil
}

func (s *ControlPlane) join(ctx context.Context) error {
	log := s.env.Log.WithValues("role", "joiner")

	if err := openPorts(ctx, s.env); err != nil {
		return err
	}

	log.Info("resetting node")
	if err := s.env.runAll(ctx, joinerResetCommands()...); err != nil {
		return fmt.Errorf("failed to reset node: %w", err)
	}

	cred, err := s.fetchJoinCredential(ctx)
	if err != nil {
		return err
	}
	log.Info("joining control plane", "credential", cred.String())

	res, err := s.env.Exec.Execute(ctx, cred.Command()+" --v=5")
	if err != nil {
		return fmt.Errorf("kubeadm join could not start: %w", redact(err, cred))
	}
	if !res.Success() {
		return fmt.Errorf("kubeadm join exited with status %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	if err := s.writeKubeVIP(ctx, kube.AdminKubeconfigPath); err != nil {
		return err
	}
	return s.copyKubeconfig(ctx)
}

func (s *ControlPlane) fetchJoinCredential(ctx context.Context) (JoinCredential, error) {
	founder, err := s.env.Founder(ctx)
	if err != nil {
		return JoinCredential{}, fmt.Errorf("failed to reach founder: %w", err)
	}
	defer func() { _ = founder.Close() }()

	res, err := founder.Execute(ctx, joinCredentialScript)
	if err != nil {
		return JoinCredential{}, fmt.Errorf("failed to request join credential: %w", err)
	}
	if !res.Success() {
		return JoinCredential{}, fmt.Errorf("founder refused join credential (status %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseJoinCredential(res.Stdout)
}

func redact(err error, cred JoinCredential) error {
	msg := err.Error()
	for _, secret := range []string{cred.Token, cred.CertificateKey} {
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, "<redacted>")
		}
	}
	return fmt.Errorf("%s", msg)
}

func (s *ControlPlane) rewriteTrust(ctx context.Context) error {
	admin, err := s.env.FS.ReadFile(ctx, kube.AdminKubeconfigPath)
	if err != nil {
		return err
	}
	ca, err := s.env.FS.ReadFile(ctx, clusterCAPath)
	if err != nil {
		return err
	}
	rewritten, err := manifests.RewriteClusterTrust(admin, manifests.DefaultClusterName, s.env.Config.Cluster.Server(), ca)
	if err != nil {
		return err
	}
	return s.env.FS.WriteFile(ctx, kube.AdminKubeconfigPath, rewritten, 0o600)
}

// copyKubeconfig hands the admin kubeconfig to the invoking user.
func (s *ControlPlane) copyKubeconfig(ctx context.Context) error {
	h := s.env.Host
	admin, err := s.env.FS.ReadFile(ctx, kube.AdminKubeconfigPath)
	if err != nil {
		return err
	}
	dir := path.Dir(h.KubeconfigPath())
	if err := s.env.FS.MkdirAll(ctx, dir); err != nil {
		return err
	}
	if err := s.env.FS.WriteFile(ctx, h.KubeconfigPath(), admin, 0o600); err != nil {
		return err
	}
	owner := shellescape.Quote(h.User + ":")
	if _, err := s.env.run(ctx, fmt.Sprintf("chown -R %s %s", owner, shellescape.Quote(dir))); err != nil {
		return fmt.Errorf("failed to hand kubeconfig to %s: %w", h.User, err)
	}
	return nil
}

func (s *ControlPlane) installCiliumCLI(ctx context.Context) error {
	version := s.env.Config.Versions.CiliumCLI
	if out, err := s.env.Exec.Execute(ctx, "cilium version --client"); err == nil && out.Success() &&
		strings.Contains(out.Stdout, version) {
		return nil
	}
	if _, err := s.env.run(ctx, ciliumCLIInstallScript(version)); err != nil {
		return fmt.Errorf("failed to install cilium CLI %s: %w", version, err)
	}
	return nil
}

// allowWorkloads waits for the node to register and removes the
// control-plane NoSchedule taint when control planes are schedulable.
func (s *ControlPlane) allowWorkloads(ctx context.Context) error {
	if !s.env.Config.ControlPlane.Schedulable {
		return nil
	}
	node := s.env.Host.NodeName()

	var client kube.Client
	err := retry.Poll(ctx, func(ctx context.Context) (bool, error) {
		c, ok := s.env.cluster(ctx)
		if !ok {
			return false, nil
		}
		exists, err := c.NodeExists(ctx, node)
		if err != nil {
			s.env.Log.V(1).Info("node lookup failed", "node", node, "error", err.Error())
			return false, nil
		}
		client = c
		return exists, nil
	}, s.env.Poll...)
	if err != nil {
		return fmt.Errorf("node %s did not register: %w", node, err)
	}

	if err := client.RemoveTaint(ctx, node, kube.ControlPlaneTaintKey, kube.NoScheduleTaintEffect); err != nil {
		return fmt.Errorf("failed to make %s schedulable: %w", node, err)
	}
	return nil
}

func founderResetCommands() []string {
	dirs := "/etc/kubernetes /var/lib/kubelet /var/lib/etcd /opt/cni"
	return []string{
		"systemctl stop kubelet",
		"kubeadm reset --force",
		"rm -rf " + dirs,
		"mkdir -p " + dirs + " /etc/kubernetes/manifests",
		"iptables -X",
		"systemctl restart containerd",
		"systemctl start kubelet",
	}
}

func joinerResetCommands() []string {
	paths := make([]string, 0, len(controlPlaneManifests)+2)
	for _, m := range controlPlaneManifests {
		paths = append(paths, path.Join("/etc/kubernetes/manifests", m))
	}
	paths = append(paths, "/etc/kubernetes/pki", "/etc/kubernetes/tmp")
	return []string{
		"systemctl stop kubelet",
		"kubeadm reset --force",
		"rm -rf " + strings.Join(paths, " "),
		"systemctl restart containerd",
		"systemctl start kubelet",
	}
}

func kubeadmInitCommand(vip string, port int, podCIDR, version string) string {
	endpoint := fmt.Sprintf("%s:%d", vip, port)
	args := []string{
		"kubeadm init",
		"--control-plane-endpoint " + endpoint,
		"--upload-certs",
		"--pod-network-cidr " + podCIDR,
		"--apiserver-advertise-address " + vip,
		"--apiserver-cert-extra-sans " + vip + ",127.0.0.1,localhost",
		"--kubernetes-version " + version,
		"--feature-gates=UserNamespacesSupport=true",
		"--ignore-preflight-errors=NumCPU,Mem",
		"--skip-phases=addon/kube-proxy",
	}
	return strings.Join(args, " ")
}

func ciliumInstallCommand(version, vip string, port int, podCIDR string) string {
	sets := []string{
		"kubeProxyReplacement=true",
		fmt.Sprintf("k8sServiceHost=%s", vip),
		fmt.Sprintf("k8sServicePort=%d", port),
		"ipam.mode=cluster-pool",
		"ipam.operator.clusterPoolIPv4PodCIDRList=" + podCIDR,
		"hubble.enabled=true",
		"hubble.relay.enabled=true",
		"hubble.ui.enabled=true",
		"tls.ca.enabled=true",
		"tls.ca.manage=true",
	}
	var b strings.Builder
	b.WriteString("KUBECONFIG=" + kube.AdminKubeconfigPath + " cilium install --version " + version)
	for _, s := range sets {
		b.WriteString(" --set " + s)
	}
	b.WriteString(" --wait")
	return b.String()
}

func ciliumCLIInstallScript(version string) string {
	base := "https://github.com/cilium/cilium-cli/releases/download/" + version
	return strings.Join([]string{
		"set -e",
		"cd /tmp",
		`ARCH=amd64; [ "$(uname -m)" = "aarch64" ] && ARCH=arm64`,
		`TAR=cilium-linux-${ARCH}.tar.gz`,
		fmt.Sprintf(`curl -fsSL -o ${TAR} %s/${TAR}`, base),
		fmt.Sprintf(`curl -fsSL -o ${TAR}.sha256sum %s/${TAR}.sha256sum`, base),
		`sha256sum --check ${TAR}.sha256sum`,
		`tar xzf ${TAR} -C /usr/local/bin`,
		`rm -f ${TAR} ${TAR}.sha256sum`,
	}, "\n")
}
