package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"golang.org/x/crypto/ssh"

	"github.com/8inary/infra/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// RemoteConfig holds SSH connection settings for one machine.
type RemoteConfig struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout bounds the TCP connect and handshake. Zero means defaultDialTimeout.
	DialTimeout time.Duration

	// DialRetries is the number of extra dial attempts on network errors.
	// Authentication failures are never retried. Zero disables retries.
	DialRetries int

	// RetryDelay is the initial delay between dial attempts.
	RetryDelay time.Duration

	// Sudo wraps every command in "sudo -n sh -c" for non-root users.
	Sudo bool

	// HostKeyCallback verifies the server key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// Remote executes commands over a single SSH connection. The connection is
// opened on first use and every command runs in its own session on it.
type Remote struct {
	config *RemoteConfig
	signer ssh.Signer

	mu     sync.Mutex
	client *ssh.Client
	closed bool
}

// NewRemote validates cfg and parses the private key once.
func NewRemote(cfg *RemoteConfig) (*Remote, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // machines are on a private management network
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Remote{config: &configCopy, signer: signer}, nil
}

// Address returns host:port of the remote machine.
func (r *Remote) Address() string {
	return net.JoinHostPort(r.config.Host, strconv.Itoa(r.config.Port))
}

// Execute runs command in a new session and waits for it to exit.
func (r *Remote) Execute(ctx context.Context, command string) (*Result, error) {
	client, err := r.connection(ctx)
	if err != nil {
		return nil, &LaunchError{Command: command, Err: err}
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, &LaunchError{
			Command: command,
			Err:     fmt.Errorf("failed to create SSH session on %s: %w", r.config.Host, err),
		}
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(r.wrap(command))
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, &LaunchError{Command: command, Err: ctx.Err()}
	case err = <-done:
	}

	res := &Result{
		Command: command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	return nil, &LaunchError{Command: command, Err: fmt.Errorf("command on %s: %w", r.config.Host, err)}
}

// Close disconnects. It is safe to call more than once.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close SSH connection to %s: %w", r.Address(), err)
	}
	return nil
}

func (r *Remote) wrap(command string) string {
	if !r.config.Sudo || r.config.User == "root" {
		return command
	}
	return "sudo -n sh -c " + shellescape.Quote(command)
}

func (r *Remote) connection(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("transport to %s is closed", r.Address())
	}
	if r.client != nil {
		return r.client, nil
	}

	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *Remote) dial(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            r.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.signer)},
		HostKeyCallback: r.config.HostKeyCallback,
		Timeout:         r.config.DialTimeout,
	}

	addr := r.Address()
	var client *ssh.Client

	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		if dialErr != nil && !isNetworkError(dialErr) {
			return retry.Fatal(dialErr)
		}
		return dialErr
	},
		retry.WithMaxRetries(r.config.DialRetries),
		retry.WithInitialDelay(r.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}
	return client, nil
}

// isNetworkError separates transient connect failures from handshake and
// authentication failures.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
