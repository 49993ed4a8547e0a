package steps

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8inary/infra/internal/config"
	"github.com/8inary/infra/internal/helm/helmtest"
	"github.com/8inary/infra/internal/host"
	"github.com/8inary/infra/internal/hostfs/hostfstest"
	"github.com/8inary/infra/internal/inventory"
	"github.com/8inary/infra/internal/kube"
	"github.com/8inary/infra/internal/kube/kubetest"
	"github.com/8inary/infra/internal/transport"
	"github.com/8inary/infra/internal/transport/transporttest"
	"github.com/8inary/infra/internal/util/retry"
)

const testNode = "node-a"

// fakePackages is an in-memory apt.Manager.
type fakePackages struct {
	mu        sync.Mutex
	installed map[string]bool
	held      []string
	updates   int
	err       error
}

func newFakePackages(installed ...string) *fakePackages {
	p := &fakePackages{installed: map[string]bool{}}
	for _, pkg := range installed {
		p.installed[pkg] = true
	}
	return p
}

func (p *fakePackages) IsInstalled(_ context.Context, pkg string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.installed[pkg], p.err
}

func (p *fakePackages) Update(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	return p.err
}

func (p *fakePackages) Install(_ context.Context, pkgs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, pkg := range pkgs {
		p.installed[pkg] = true
	}
	return nil
}

func (p *fakePackages) Hold(_ context.Context, pkgs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = append(p.held, pkgs...)
	return p.err
}

type testEnv struct {
	*Env
	exec     *transporttest.Scripted
	fs       *hostfstest.Memory
	packages *fakePackages
	api      *kubetest.Fake
	charts   *helmtest.Fake
	founder  *transporttest.Scripted
	sleeps   []time.Duration
}

func newTestEnv(t *testing.T, role inventory.Role) *testEnv {
	t.Helper()

	te := &testEnv{
		exec:     transporttest.New(),
		fs:       hostfstest.New(nil),
		packages: newFakePackages(),
		api:      kubetest.New(),
		charts:   &helmtest.Fake{},
		founder:  transporttest.New(),
	}
	te.Env = &Env{
		Exec:     te.exec,
		FS:       te.fs,
		Packages: te.packages,
		Machine: inventory.Machine{
			ID:      "test-machine",
			Address: "192.168.0.9",
			Port:    22,
			User:    "mgmt",
			Role:    role,
		},
		Host: &host.Context{
			User:      "mgmt",
			Home:      "/home/mgmt",
			Hostname:  "Node-A",
			MachineID: "test-machine",
		},
		Config: config.Default(),
		Kube:   kube.StaticFactory(te.api),
		Charts: te.charts.Factory(),
		Founder: func(context.Context) (transport.Transport, error) {
			return te.founder, nil
		},
		Poll: []retry.PollOption{
			retry.WithSleeper(func(_ context.Context, d time.Duration) error {
				te.sleeps = append(te.sleeps, d)
				return nil
			}),
		},
		Log: logr.Discard(),
	}
	return te
}

func TestEnvValidate(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleJoiner)
	require.NoError(t, te.Validate())

	te.Founder = nil
	require.Error(t, te.Validate())

	te.Machine.Role = inventory.RoleWorker
	require.NoError(t, te.Validate())

	te.Kube = nil
	require.Error(t, te.Validate())
}

func TestEnvCluster_SoftFailure(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t, inventory.RoleFounder)
	te.Kube = func(context.Context) (kube.Client, error) { return nil, errors.New("no kubeconfig") }

	c, ok := te.cluster(context.Background())
	assert.False(t, ok)
	assert.Nil(t, c)
}
