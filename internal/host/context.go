// Package host describes the machine being converged: who invoked the run,
// where that user's home is, and how the machine identifies itself.
//
// The Context is discovered once at startup through the machine's transport
// and then passed by reference to everything that needs it.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/8inary/infra/internal/transport"
)

// MachineIDPath holds the stable machine identity.
const MachineIDPath = "/etc/machine-id"

// ErrNoUser is returned when the invoking user cannot be determined.
var ErrNoUser = errors.New("cannot determine invoking user (set SUDO_USER or USER)")

// Context is the explicit process context of a run.
type Context struct {
	// User owns generated credentials such as ~/.kube/config.
	User string
	// Home is User's home directory on the machine.
	Home string
	// Hostname is the machine's fully qualified host name.
	Hostname string
	// MachineID is the inventory key read from /etc/machine-id.
	MachineID string
}

// NodeName is the name the kubelet registers the machine under.
func (c *Context) NodeName() string {
	return strings.ToLower(c.Hostname)
}

// KubeconfigPath is the user's kubeconfig location.
func (c *Context) KubeconfigPath() string {
	return path.Join(c.Home, ".kube", "config")
}

// SSHKeyPath is the management key location.
func (c *Context) SSHKeyPath() string {
	return path.Join(c.Home, ".ssh", "id_ed25519")
}

// InvokingUser returns the user that started the run, preferring the
// account behind sudo.
func InvokingUser() (string, error) {
	for _, key := range []string{"SUDO_USER", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, nil
		}
	}
	return "", ErrNoUser
}

// ReadMachineID reads the machine identity through t.
func ReadMachineID(ctx context.Context, t transport.Transport) (string, error) {
	out, err := transport.Run(ctx, t, "cat "+MachineIDPath)
	if err != nil {
		return "", fmt.Errorf("failed to read machine id: %w", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", fmt.Errorf("machine id at %s is empty", MachineIDPath)
	}
	return id, nil
}

// Discover builds the Context for user by querying the machine through t.
func Discover(ctx context.Context, t transport.Transport, user string) (*Context, error) {
	if user == "" {
		return nil, ErrNoUser
	}

	passwd, err := transport.Run(ctx, t, "getent passwd "+shellescape.Quote(user))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", user, err)
	}
	home, err := homeFromPasswd(passwd)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", user, err)
	}

	hostname, err := transport.Run(ctx, t, "hostname -f")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}

	machineID, err := ReadMachineID(ctx, t)
	if err != nil {
		return nil, err
	}

	return &Context{
		User:      user,
		Home:      home,
		Hostname:  strings.TrimSpace(hostname),
		MachineID: machineID,
	}, nil
}

// homeFromPasswd extracts the sixth field of a passwd entry.
func homeFromPasswd(entry string) (string, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(entry), "\n", 2)[0])
	fields := strings.Split(line, ":")
	if len(fields) < 7 || fields[5] == "" {
		return "", fmt.Errorf("malformed passwd entry %q", line)
	}
	return fields[5], nil
}
