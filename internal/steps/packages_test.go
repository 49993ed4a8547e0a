package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8inary/infra/internal/inventory"
	"github.com/8inary/infra/internal/transport/transporttest"
)

const defaultContainerdConfig = `version = 2
[plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc.options]
            SystemdCgroup = false
`

func TestContainerd_Check(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	step := NewContainerd(te.Env)
	ctx := context.Background()

	ok, err := step.Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, te.exec.Calls(), "no service probe without the package")

	te.packages.installed["containerd"] = true
	seed(te, map[string]string{ContainerdConfigPath: "version = 2\n"})
	te.exec.On("systemctl is-active", transporttest.Reply{ExitCode: 3}, transporttest.Reply{})

	ok, err = step.Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = step.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContainerd_ApplyGeneratesConfig(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	te.exec.On("containerd config default", transporttest.Reply{Stdout: defaultContainerdConfig})

	require.NoError(t, NewContainerd(te.Env).Apply(context.Background()))

	assert.True(t, te.packages.installed["containerd"])
	assert.Contains(t, te.fs.Dirs(), "/etc/containerd")
	got, ok := te.fs.Content(ContainerdConfigPath)
	require.True(t, ok)
	assert.Contains(t, got, "            SystemdCgroup = true\n")
	assert.NotContains(t, got, "SystemdCgroup = false")
	assert.Greater(t, te.exec.Index("systemctl restart containerd"), te.exec.Index("containerd config default"))
}

func TestContainerd_ApplyKeepsExistingConfig(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	seed(te, map[string]string{ContainerdConfigPath: "custom = true\n"})

	require.NoError(t, NewContainerd(te.Env).Apply(context.Background()))

	got, _ := te.fs.Content(ContainerdConfigPath)
	assert.Equal(t, "custom = true\n", got)
	assert.False(t, te.exec.Ran("containerd config default"))
	assert.True(t, te.exec.Ran("systemctl restart containerd"))
}

func TestContainerd_ApplyReplacesEmptyConfig(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	seed(te, map[string]string{ContainerdConfigPath: "  \n"})
	te.exec.On("containerd config default", transporttest.Reply{Stdout: defaultContainerdConfig})

	require.NoError(t, NewContainerd(te.Env).Apply(context.Background()))
	assert.True(t, te.exec.Ran("containerd config default"))
}

func TestContainerd_ApplyReadFailureKeepsConfig(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	seed(te, map[string]string{ContainerdConfigPath: "custom = true\n"})
	te.fs.ReadErr[ContainerdConfigPath] = errors.New("connection reset")

	err := NewContainerd(te.Env).Apply(context.Background())
	require.ErrorContains(t, err, "failed to read containerd config")

	got, _ := te.fs.Content(ContainerdConfigPath)
	assert.Equal(t, "custom = true\n", got)
	assert.Zero(t, te.fs.Writes(ContainerdConfigPath))
	assert.False(t, te.exec.Ran("containerd config default"))
	assert.False(t, te.exec.Ran("systemctl restart containerd"))
}

func TestEnableSystemdCgroup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "  SystemdCgroup = true\n", EnableSystemdCgroup("  SystemdCgroup = false\n"))
	assert.Equal(t, "SystemdCgroup = true", EnableSystemdCgroup("SystemdCgroup=false"))
	assert.Equal(t, "# SystemdCgroup = false\n", EnableSystemdCgroup("# SystemdCgroup = false\n"))
}

func TestKubes(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	step := NewKubes(te.Env)
	ctx := context.Background()

	te.packages.installed["kubelet"] = true
	ok, err := step.Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, step.Apply(ctx))

	assert.True(t, te.exec.Ran("curl -fsSL https://pkgs.k8s.io/core:/stable:/v1.34/deb/Release.key | gpg --dearmor --yes -o /etc/apt/keyrings/kubernetes-apt-keyring.gpg"))
	list, exists := te.fs.Content(KubernetesSourceList)
	require.True(t, exists)
	assert.Equal(t,
		"deb [signed-by=/etc/apt/keyrings/kubernetes-apt-keyring.gpg] https://pkgs.k8s.io/core:/stable:/v1.34/deb/ /\n",
		list)
	assert.Equal(t, 1, te.packages.updates)
	assert.Equal(t, []string{"kubelet", "kubeadm", "kubectl"}, te.packages.held)

	ok, err = step.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKubes_KeyFailure(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleWorker)
	te.exec.On("gpg --dearmor", transporttest.Reply{ExitCode: 2})

	require.Error(t, NewKubes(te.Env).Apply(context.Background()))
	assert.Zero(t, te.packages.updates)
}
