package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8inary/infra/internal/inventory"
	"github.com/8inary/infra/internal/kube"
	"github.com/8inary/infra/internal/manifests"
	"github.com/8inary/infra/internal/transport"
	"github.com/8inary/infra/internal/transport/transporttest"
	"github.com/8inary/infra/internal/util/retry"
)

const adminKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: kubernetes
  cluster:
    server: https://192.168.0.2:6443
    certificate-authority-data: b2xk
contexts:
- name: kubernetes-admin@kubernetes
  context:
    cluster: kubernetes
    user: kubernetes-admin
current-context: kubernetes-admin@kubernetes
users:
- name: kubernetes-admin
  user:
    client-certificate-data: Y2VydA==
    client-key-data: a2V5
`

const clusterCA = "-----BEGIN CERTIFICATE-----\nMIIBnew\n-----END CERTIFICATE-----\n"

const joinOutput = "kubeadm join 192.168.0.2:6443 --token abcdef.0123456789abcdef " +
	"--discovery-token-ca-cert-hash sha256:1111 --control-plane --certificate-key deadbeefcafe\n"

func withAdmin(te *testEnv) {
	seed(te, map[string]string{
		kube.AdminKubeconfigPath: adminKubeconfig,
		clusterCAPath:            clusterCA,
	})
}

func TestControlPlane_WorkerIsUntouched(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	step := NewControlPlane(te.Env)

	ok, err := step.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, step.Apply(context.Background()))

	assert.Empty(t, te.exec.Calls())
	assert.Empty(t, te.api.RemovedTaints)
}

func TestControlPlane_Check(t *testing.T) {
	t.Parallel()

	t.Run("no admin kubeconfig", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, inventory.RoleFounder)
		te.api.NodeLabels[testNode] = map[string]string{kube.ControlPlaneLabel: ""}

		ok, err := NewControlPlane(te.Env).Check(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("labeled node", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, inventory.RoleJoiner)
		withAdmin(te)
		te.api.NodeLabels[testNode] = map[string]string{kube.ControlPlaneLabel: ""}

		ok, err := NewControlPlane(te.Env).Check(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unlabeled node", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, inventory.RoleFounder)
		withAdmin(te)
		te.api.NodeLabels[testNode] = map[string]string{}

		ok, err := NewControlPlane(te.Env).Check(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cluster API errors are soft", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, inventory.RoleFounder)
		withAdmin(te)
		te.api.Err = errors.New("connection refused")

		ok, err := NewControlPlane(te.Env).Check(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestControlPlane_FounderApply(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleFounder)
	withAdmin(te)
	te.api.NodeLabels[testNode] = map[string]string{}

	require.NoError(t, NewControlPlane(te.Env).Apply(context.Background()))

	order := []string{
		"ufw allow from 192.168.0.0/16 to any port 2379",
		"ufw reload",
		"ctr -n k8s.io image pull ghcr.io/kube-vip/kube-vip:v1.0.2@sha256:f86c774c4c0dcab81e56e3bdb42a5a6105c324767cfbc3a44df044f8a2666f8e",
		"cilium-cli/releases/download/v0.18.9",
		"systemctl stop kubelet",
		"kubeadm reset --force",
		"rm -rf /etc/kubernetes /var/lib/kubelet /var/lib/etcd /opt/cni",
		"iptables -X",
		"kubeadm init",
		"chown -R mgmt: /home/mgmt/.kube",
		"cilium install --version 1.18.4",
		"cilium status --wait",
	}
	last := -1
	for _, cmd := range order {
		i := te.exec.Index(cmd)
		require.GreaterOrEqual(t, i, 0, "missing %q", cmd)
		assert.Greater(t, i, last, "%q ran out of order", cmd)
		last = i
	}

	initCmd := te.exec.Calls()[te.exec.Index("kubeadm init")]
	for _, flag := range []string{
		"--control-plane-endpoint 192.168.0.2:6443",
		"--upload-certs",
		"--pod-network-cidr 10.0.0.0/16",
		"--apiserver-advertise-address 192.168.0.2",
		"--apiserver-cert-extra-sans 192.168.0.2,127.0.0.1,localhost",
		"--kubernetes-version v1.34.2",
		"--skip-phases=addon/kube-proxy",
	} {
		assert.Contains(t, initCmd, flag)
	}

	cilium := te.exec.Calls()[te.exec.Index("cilium install")]
	assert.Contains(t, cilium, "--set kubeProxyReplacement=true")
	assert.Contains(t, cilium, "--set ipam.operator.clusterPoolIPv4PodCIDRList=10.0.0.0/16")
	assert.Contains(t, cilium, "--set hubble.ui.enabled=true")
	assert.Contains(t, cilium, "--set tls.ca.manage=true")

	vip, ok := te.fs.Content(manifests.KubeVIPManifestPath)
	require.True(t, ok)
	assert.Contains(t, vip, "/etc/kubernetes/super-admin.conf")
	assert.Contains(t, vip, "value: 192.168.0.2")

	user, ok := te.fs.Content("/home/mgmt/.kube/config")
	require.True(t, ok)
	assert.Contains(t, user, "server: https://192.168.0.2:6443")
	assert.NotContains(t, user, "b2xk", "the CA from pki/ca.crt replaces the old one")
	assert.Equal(t, 0o600, int(te.fs.Mode("/home/mgmt/.kube/config")))

	assert.Equal(t, []string{testNode + "/node-role.kubernetes.io/control-plane:NoSchedule"}, te.api.RemovedTaints)
}

func TestControlPlane_FounderSkipsInstalledCiliumCLI(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleFounder)
	withAdmin(te)
	te.api.NodeLabels[testNode] = map[string]string{}
	te.exec.On("cilium version --client", transporttest.Reply{Stdout: "cilium-cli: v0.18.9 compiled with go1.25\n"})

	require.NoError(t, NewControlPlane(te.Env).Apply(context.Background()))
	assert.False(t, te.exec.Ran("cilium-cli/releases/download"))
}

func TestControlPlane_FounderInitFailureStops(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleFounder)
	withAdmin(te)
	te.exec.On("kubeadm init", transporttest.Reply{ExitCode: 1, Stderr: "preflight errors"})

	err := NewControlPlane(te.Env).Apply(context.Background())
	var cmdErr *transport.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.False(t, te.exec.Ran("cilium install"))
	assert.Empty(t, te.api.RemovedTaints)
}

func TestControlPlane_JoinerApply(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleJoiner)
	withAdmin(te)
	te.api.NodeLabels[testNode] = map[string]string{}
	te.founder.On("kubeadm token create", transporttest.Reply{Stdout: joinOutput})

	require.NoError(t, NewControlPlane(te.Env).Apply(context.Background()))

	assert.True(t, te.founder.Ran("kubeadm init phase upload-certs --upload-certs | tail -1"))
	assert.True(t, te.founder.Closed())

	join := te.exec.Index("kubeadm join 192.168.0.2:6443 --token abcdef.0123456789abcdef " +
		"--discovery-token-ca-cert-hash sha256:1111 --control-plane --certificate-key deadbeefcafe --v=5")
	require.GreaterOrEqual(t, join, 0)
	assert.Less(t, te.exec.Index("kubeadm reset --force"), join)
	assert.Less(t, te.exec.Index("rm -rf /etc/kubernetes/manifests/kube-apiserver.yaml"), join)
	assert.False(t, te.exec.Ran("kubeadm init"))

	vip, ok := te.fs.Content(manifests.KubeVIPManifestPath)
	require.True(t, ok)
	assert.Contains(t, vip, kube.AdminKubeconfigPath)

	_, ok = te.fs.Content("/home/mgmt/.kube/config")
	assert.True(t, ok)
	assert.Len(t, te.api.RemovedTaints, 1)
}

func TestControlPlane_JoinerRejectsWorkerJoin(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleJoiner)
	te.founder.On("kubeadm token create", transporttest.Reply{
		Stdout: "kubeadm join 192.168.0.2:6443 --token abc --discovery-token-ca-cert-hash sha256:1\n",
	})

	err := NewControlPlane(te.Env).Apply(context.Background())
	require.ErrorIs(t, err, ErrNoControlPlaneJoin)
	assert.False(t, te.exec.Ran("kubeadm join"))
}

func TestControlPlane_JoinFailureHidesSecrets(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleJoiner)
	te.founder.On("kubeadm token create", transporttest.Reply{Stdout: joinOutput})
	te.exec.On("kubeadm join", transporttest.Reply{ExitCode: 1, Stderr: "unable to fetch kubeadm-config"})

	err := NewControlPlane(te.Env).Apply(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to fetch kubeadm-config")
	assert.NotContains(t, err.Error(), "abcdef.0123456789abcdef")
	assert.NotContains(t, err.Error(), "deadbeefcafe")
}

func TestControlPlane_FounderUnreachable(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleJoiner)
	te.Founder = func(context.Context) (transport.Transport, error) {
		return nil, errors.New("dial tcp 192.168.0.2:22: connect: no route to host")
	}

	err := NewControlPlane(te.Env).Apply(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach founder")
}

func TestControlPlane_NotSchedulable(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleFounder)
	withAdmin(te)
	te.Config.ControlPlane.Schedulable = false

	require.NoError(t, NewControlPlane(te.Env).Apply(context.Background()))
	assert.Empty(t, te.api.RemovedTaints)
}

func TestControlPlane_NodeNeverRegisters(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleFounder)
	withAdmin(te)

	err := NewControlPlane(te.Env).Apply(context.Background())
	require.ErrorIs(t, err, retry.ErrNotReady)
	assert.Equal(t, []time.Duration{
		4 * time.Second, 8 * time.Second, 16 * time.Second,
		32 * time.Second, 64 * time.Second, 128 * time.Second,
	}, te.sleeps)
	assert.Empty(t, te.api.RemovedTaints)
}
