// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"

	"github.com/8inary/infra/internal/apt"
	"github.com/8inary/infra/internal/config"
	"github.com/8inary/infra/internal/helm"
	"github.com/8inary/infra/internal/host"
	"github.com/8inary/infra/internal/hostfs"
	"github.com/8inary/infra/internal/inventory"
	"github.com/8inary/infra/internal/kube"
	"github.com/8inary/infra/internal/logging"
	"github.com/8inary/infra/internal/steps"
	"github.com/8inary/infra/internal/transport"
	"github.com/8inary/infra/internal/util/retry"
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath string
	MachineID  string
	LogLevel   string
	LogFormat  string
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfig loads the configuration file, or defaults for an empty path.
	loadConfig = config.Load

	// loadTimeouts reads INFRA_* overrides.
	loadTimeouts = config.LoadTimeouts

	// registry returns the machine table.
	registry = inventory.Default

	// newLocal creates the transport for this host.
	newLocal = func() transport.Transport { return transport.NewLocal() }

	// newSelector creates the per-machine transport selector.
	newSelector = func(remote transport.RemoteFactory) *transport.Selector {
		return transport.NewSelector(nil, remote)
	}

	// newRemote opens an SSH transport.
	newRemote = func(cfg *transport.RemoteConfig) (transport.Transport, error) {
		return transport.NewRemote(cfg)
	}

	// invokingUser returns the user behind sudo.
	invokingUser = host.InvokingUser

	// readFile reads local files such as the SSH key.
	readFile = os.ReadFile

	// stdout and stderr receive command output.
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// session is everything a command needs to act on one machine.
type session struct {
	opts     Options
	cfg      *config.Config
	timeouts *config.Timeouts
	log      logr.Logger

	machine  inventory.Machine
	selector *transport.Selector
	exec     transport.Transport
	host     *host.Context

	keyPath string
	key     []byte
}

// openSession loads configuration, resolves the target machine and opens its
// transport. Logs go to logOut.
func openSession(ctx context.Context, opts Options, logOut io.Writer) (*session, error) {
	log, err := logging.New(logOut, opts.LogLevel, opts.LogFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	s := &session{
		opts:     opts,
		cfg:      cfg,
		timeouts: loadTimeouts(),
		log:      log,
		keyPath:  cfg.SSH.KeyPath,
	}

	s.machine, err = s.resolveMachine(ctx)
	if err != nil {
		return nil, err
	}
	if s.keyPath == "" {
		// Only remote machines need the key; a lookup failure surfaces on first dial.
		if p, err := defaultKeyPath(ctx); err == nil {
			s.keyPath = p
		} else {
			s.log.V(1).Info("no default SSH key path", "error", err.Error())
		}
	}
	s.log = s.log.WithValues("machine", s.machine.ID, "role", string(s.machine.Role))

	s.selector = newSelector(s.dialRemote)
	s.exec, err = s.selector.For(s.machine)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.machine, err)
	}

	user := s.machine.User
	if local, _ := s.selector.IsLocal(s.machine.Address); local {
		if u, err := invokingUser(); err == nil {
			user = u
		}
	}
	s.host, err = host.Discover(ctx, s.exec, user)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.host.MachineID != s.machine.ID {
		_ = s.Close()
		return nil, fmt.Errorf("machine at %s reports id %s, expected %s", s.machine.Address, s.host.MachineID, s.machine.ID)
	}

	return s, nil
}

// resolveMachine picks the --machine entry, or this host by its machine id.
func (s *session) resolveMachine(ctx context.Context) (inventory.Machine, error) {
	id := s.opts.MachineID
	if id == "" {
		local := newLocal()
		defer func() { _ = local.Close() }()
		var err error
		id, err = host.ReadMachineID(ctx, local)
		if err != nil {
			return inventory.Machine{}, err
		}
	}
	return registry().Resolve(id)
}

// dialRemote is the selector's RemoteFactory.
func (s *session) dialRemote(m inventory.Machine) (transport.Transport, error) {
	key, err := s.privateKey()
	if err != nil {
		return nil, err
	}
	return newRemote(&transport.RemoteConfig{
		Host:        m.Address,
		Port:        m.Port,
		User:        m.User,
		PrivateKey:  key,
		DialTimeout: s.dialTimeout(),
		DialRetries: s.timeouts.DialRetries,
		Sudo:        s.cfg.SSH.Sudo,
	})
}

// dialTimeout prefers an explicit INFRA_SSH_DIAL_TIMEOUT over the config file.
func (s *session) dialTimeout() time.Duration {
	if _, ok := os.LookupEnv("INFRA_SSH_DIAL_TIMEOUT"); ok {
		return s.timeouts.DialTimeout
	}
	return s.cfg.SSH.DialTimeout
}

// defaultKeyPath is the invoking user's ~/.ssh/id_ed25519 on this host.
func defaultKeyPath(ctx context.Context) (string, error) {
	user, err := invokingUser()
	if err != nil {
		return "", err
	}
	local := newLocal()
	defer func() { _ = local.Close() }()
	hc, err := host.Discover(ctx, local, user)
	if err != nil {
		return "", err
	}
	return hc.SSHKeyPath(), nil
}

// privateKey reads the management key once.
func (s *session) privateKey() ([]byte, error) {
	if s.key != nil {
		return s.key, nil
	}
	if s.keyPath == "" {
		return nil, fmt.Errorf("no SSH key path: set ssh.key_path or run as a user with a home directory")
	}
	key, err := readFile(s.keyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no SSH key at %s (run 'infra keygen' first): %w", s.keyPath, err)
		}
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}
	s.key = key
	return key, nil
}

// dialFounder opens a fresh transport to the founder for join credentials.
func (s *session) dialFounder(ctx context.Context) (transport.Transport, error) {
	founder, err := registry().Founder()
	if err != nil {
		return nil, err
	}
	if local, err := s.selector.IsLocal(founder.Address); err == nil && local {
		return newLocal(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.dialRemote(founder)
}

// env assembles the step environment for the session's machine.
func (s *session) env() *steps.Env {
	files := hostfs.New(s.exec)
	readAdmin := func(ctx context.Context) ([]byte, error) {
		return files.ReadFile(ctx, kube.AdminKubeconfigPath)
	}
	return &steps.Env{
		Exec:     s.exec,
		FS:       files,
		Packages: apt.New(s.exec),
		Machine:  s.machine,
		Host:     s.host,
		Config:   s.cfg,
		Kube:     kube.AdminFactory(files),
		Charts:   helm.NewFactory(readAdmin, s.log.WithName("helm")),
		Founder:  s.dialFounder,
		Poll: []retry.PollOption{
			retry.WithAttempts(s.timeouts.PollAttempts),
			retry.WithBaseDelay(s.timeouts.PollBaseDelay),
		},
		ChartTimeout: s.timeouts.ChartInstall,
		Log:          s.log.WithName("steps"),
	}
}

// Close releases every transport the session opened.
func (s *session) Close() error {
	if s.selector == nil {
		return nil
	}
	return s.selector.Close()
}
